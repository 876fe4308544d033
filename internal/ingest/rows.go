// Package ingest reads and writes experiment data as CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/headline-goat/janus/internal/experiment"
)

// ErrFormat marks CSV input that cannot be read as experiment data.
var ErrFormat = errors.New("malformed csv")

// Columns names the header of each field of a per-exposure CSV.
type Columns struct {
	Alternative string
	Converted   string
	Value       string
}

// DefaultColumns returns alternative, converted and value.
func DefaultColumns() Columns {
	return Columns{
		Alternative: "alternative",
		Converted:   "converted",
		Value:       "value",
	}
}

// fallbacks are tried when a configured column is missing.
var fallbacks = map[string][]string{
	"converted": {"sales", "conversion"},
	"value":     {"revenue"},
	"period":    {"exposure_period", "date", "day"},
}

// ReadRows parses a per-exposure CSV whose first line is a header. Empty
// fields in the zero-valued Columns take the defaults.
func ReadRows(r io.Reader, cols Columns) ([]experiment.Row, error) {
	cols = cols.withDefaults()

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
	altCol, err := idx.find(cols.Alternative)
	if err != nil {
		return nil, err
	}
	convCol, err := idx.find(cols.Converted)
	if err != nil {
		return nil, err
	}
	valCol, err := idx.find(cols.Value)
	if err != nil {
		return nil, err
	}

	var rows []experiment.Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}

		converted, err := parseConverted(record[convCol])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		value, err := parseFloat(record[valCol])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}

		rows = append(rows, experiment.Row{
			Alternative: strings.TrimSpace(record[altCol]),
			Converted:   converted,
			Value:       value,
		})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrFormat)
	}
	return rows, nil
}

// WriteRows writes rows as a per-exposure CSV with the default header.
func WriteRows(w io.Writer, rows []experiment.Row) error {
	cw := csv.NewWriter(w)

	cols := DefaultColumns()
	if err := cw.Write([]string{cols.Alternative, cols.Converted, cols.Value}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Alternative,
			strconv.Itoa(r.Converted),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Alternative == "" {
		c.Alternative = d.Alternative
	}
	if c.Converted == "" {
		c.Converted = d.Converted
	}
	if c.Value == "" {
		c.Value = d.Value
	}
	return c
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (idx headerIndex) find(name string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if i, ok := idx[key]; ok {
		return i, nil
	}
	for _, alt := range fallbacks[key] {
		if i, ok := idx[alt]; ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: missing column %q", ErrFormat, name)
}

func parseConverted(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return 1, nil
	case "0", "false", "no", "":
		return 0, nil
	}
	// counts above one are kept so the experiment rejects them
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid converted flag %q", s)
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
