package experiment

import (
	"fmt"
	"math"

	"github.com/headline-goat/janus/internal/stats"
)

// Row is one exposure: which alternative was shown, whether it converted
// (0 or 1) and the value it produced.
type Row struct {
	Alternative string
	Converted   int
	Value       float64
}

// Aggregate is the summary form of a variant's observed data.
type Aggregate struct {
	Name        string
	Exposures   int
	Conversions int
	TotalValue  float64
}

// Variant holds the observed data of one alternative. It is immutable once
// built.
type Variant struct {
	name        string
	exposures   int
	conversions int
	totalValue  float64

	// per-exposure data, only when built from rows
	converted []float64
	values    []float64
}

// NewVariant builds a variant from summary counts.
func NewVariant(agg Aggregate) (*Variant, error) {
	if agg.Name == "" {
		return nil, fmt.Errorf("%w: variant name is required", ErrValidation)
	}
	if agg.Exposures < 0 || agg.Conversions < 0 {
		return nil, fmt.Errorf("%w: variant %q has negative counts (exposures=%d, conversions=%d)",
			ErrValidation, agg.Name, agg.Exposures, agg.Conversions)
	}
	if agg.Conversions > agg.Exposures {
		return nil, fmt.Errorf("%w: variant %q has more conversions (%d) than exposures (%d)",
			ErrValidation, agg.Name, agg.Conversions, agg.Exposures)
	}
	if math.IsNaN(agg.TotalValue) || math.IsInf(agg.TotalValue, 0) || agg.TotalValue < 0 {
		return nil, fmt.Errorf("%w: variant %q has invalid total value %v", ErrValidation, agg.Name, agg.TotalValue)
	}

	return &Variant{
		name:        agg.Name,
		exposures:   agg.Exposures,
		conversions: agg.Conversions,
		totalValue:  agg.TotalValue,
	}, nil
}

// VariantFromRows consolidates the rows labelled name. Rows of other
// alternatives are ignored.
func VariantFromRows(name string, rows []Row) (*Variant, error) {
	v := &Variant{name: name}

	for i, r := range rows {
		if r.Alternative != name {
			continue
		}
		if r.Converted != 0 && r.Converted != 1 {
			return nil, fmt.Errorf("%w: row %d of variant %q has converted flag %d, want 0 or 1",
				ErrValidation, i, name, r.Converted)
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) || r.Value < 0 {
			return nil, fmt.Errorf("%w: row %d of variant %q has invalid value %v", ErrValidation, i, name, r.Value)
		}

		v.exposures++
		v.conversions += r.Converted
		v.totalValue += r.Value
		v.converted = append(v.converted, float64(r.Converted))
		v.values = append(v.values, r.Value)
	}

	if v.exposures == 0 {
		return nil, fmt.Errorf("%w: no rows for variant %q", ErrValidation, name)
	}
	return v, nil
}

func (v *Variant) Name() string        { return v.name }
func (v *Variant) Exposures() int      { return v.exposures }
func (v *Variant) Conversions() int    { return v.conversions }
func (v *Variant) TotalValue() float64 { return v.totalValue }

// HasRows reports whether per-exposure data is available for resampling.
func (v *Variant) HasRows() bool { return v.converted != nil }

// ConversionRate is conversions/exposures, 0 without exposures.
func (v *Variant) ConversionRate() float64 {
	if v.exposures == 0 {
		return 0
	}
	return float64(v.conversions) / float64(v.exposures)
}

// AvgValuePerConversion is total value/conversions, 0 without conversions.
func (v *Variant) AvgValuePerConversion() float64 {
	if v.conversions == 0 {
		return 0
	}
	return v.totalValue / float64(v.conversions)
}

// ValuePerExposure is total value/exposures, 0 without exposures.
func (v *Variant) ValuePerExposure() float64 {
	if v.exposures == 0 {
		return 0
	}
	return v.totalValue / float64(v.exposures)
}

// Observed returns the observed value of metric m.
func (v *Variant) Observed(m stats.Metric) float64 {
	switch m {
	case stats.Conversion:
		return v.ConversionRate()
	case stats.ValuePerConversion:
		return v.AvgValuePerConversion()
	case stats.ValuePerExposure:
		return v.ValuePerExposure()
	}
	return 0
}

// Observation returns the sufficient statistics posteriors are updated with.
func (v *Variant) Observation() stats.Observation {
	return stats.Observation{
		Exposures:   v.exposures,
		Conversions: v.conversions,
		TotalValue:  v.totalValue,
	}
}

// ResampleData returns the per-exposure series the bootstrap estimates m
// from: converted flags, values of converting rows, or every value. It is
// nil for variants built from aggregates.
func (v *Variant) ResampleData(m stats.Metric) []float64 {
	switch m {
	case stats.Conversion:
		return v.converted
	case stats.ValuePerConversion:
		var paid []float64
		for i, c := range v.converted {
			if c == 1 {
				paid = append(paid, v.values[i])
			}
		}
		return paid
	case stats.ValuePerExposure:
		return v.values
	}
	return nil
}
