package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/headline-goat/janus/internal/experiment"
)

// SummaryRow is one period of one alternative: how many exposures and
// conversions it had and the value those conversions produced.
type SummaryRow struct {
	Alternative string  `json:"alternative" validate:"required"`
	Period      string  `json:"period"`
	Exposures   int     `json:"exposures" validate:"gte=0"`
	Conversions int     `json:"conversions" validate:"gte=0,ltefield=Exposures"`
	Value       float64 `json:"value" validate:"gte=0"`
}

var summaryHeader = []string{"alternative", "period", "exposures", "conversions", "value"}

// ReadSummary parses a per-period summary CSV with the columns alternative,
// period, exposures, conversions and value. The period column is optional.
func ReadSummary(r io.Reader) ([]SummaryRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	idx := indexHeader(header)
	cols := make(map[string]int, len(summaryHeader))
	for _, name := range summaryHeader {
		i, err := idx.find(name)
		if err != nil {
			if name == "period" {
				cols[name] = -1
				continue
			}
			return nil, err
		}
		cols[name] = i
	}

	var rows []SummaryRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}

		row := SummaryRow{Alternative: strings.TrimSpace(record[cols["alternative"]])}
		if i := cols["period"]; i >= 0 {
			row.Period = strings.TrimSpace(record[i])
		}
		if row.Exposures, err = parseInt(record[cols["exposures"]]); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		if row.Conversions, err = parseInt(record[cols["conversions"]]); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		if row.Value, err = parseFloat(record[cols["value"]]); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrFormat)
	}
	return rows, nil
}

// WriteSummary writes rows as a summary CSV readable by ReadSummary.
func WriteSummary(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Alternative,
			r.Period,
			strconv.Itoa(r.Exposures),
			strconv.Itoa(r.Conversions),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExpandSummary turns summary rows into per-exposure rows. Each period of an
// alternative yields one converting row per conversion, each carrying an
// equal share of the period value, followed by exposures-conversions rows
// without value.
func ExpandSummary(rows []SummaryRow) ([]experiment.Row, error) {
	total := 0
	for _, r := range rows {
		if err := Validate(r); err != nil {
			return nil, err
		}
		total += r.Exposures
	}

	out := make([]experiment.Row, 0, total)
	for _, r := range rows {
		perConversion := 0.0
		if r.Conversions > 0 {
			perConversion = r.Value / float64(r.Conversions)
		}
		for i := 0; i < r.Conversions; i++ {
			out = append(out, experiment.Row{Alternative: r.Alternative, Converted: 1, Value: perConversion})
		}
		for i := r.Conversions; i < r.Exposures; i++ {
			out = append(out, experiment.Row{Alternative: r.Alternative})
		}
	}
	return out, nil
}

// Totals sums summary rows per alternative, in first-seen order.
func Totals(rows []SummaryRow) ([]experiment.Aggregate, error) {
	var out []experiment.Aggregate
	pos := make(map[string]int)

	for _, r := range rows {
		if err := Validate(r); err != nil {
			return nil, err
		}
		i, ok := pos[r.Alternative]
		if !ok {
			i = len(out)
			pos[r.Alternative] = i
			out = append(out, experiment.Aggregate{Name: r.Alternative})
		}
		out[i].Exposures += r.Exposures
		out[i].Conversions += r.Conversions
		out[i].TotalValue += r.Value
	}
	return out, nil
}

var validate = validator.New()

// Validate checks the figures of one summary row.
func Validate(r SummaryRow) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s period %q: %w", experiment.ErrValidation, r.Alternative, r.Period, err)
	}
	return nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// exports often write counts as 12.0
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		return int(f), nil
	}
	return n, nil
}
