package experiment_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/stats"
)

func TestNewVariant_DerivedRatios(t *testing.T) {
	v, err := experiment.NewVariant(experiment.Aggregate{Name: "A", Exposures: 1000, Conversions: 100, TotalValue: 1000})
	require.NoError(t, err)

	assert.Equal(t, "A", v.Name())
	assert.InDelta(t, 0.1, v.ConversionRate(), 1e-12)
	assert.InDelta(t, 10.0, v.AvgValuePerConversion(), 1e-12)
	assert.InDelta(t, 1.0, v.ValuePerExposure(), 1e-12)
	assert.False(t, v.HasRows())
	assert.Nil(t, v.ResampleData(stats.Conversion))

	assert.Equal(t, stats.Observation{Exposures: 1000, Conversions: 100, TotalValue: 1000}, v.Observation())
	assert.InDelta(t, 10.0, v.Observed(stats.ValuePerConversion), 1e-12)
}

func TestNewVariant_ZeroSafeRatios(t *testing.T) {
	v, err := experiment.NewVariant(experiment.Aggregate{Name: "empty"})
	require.NoError(t, err)

	assert.Equal(t, 0.0, v.ConversionRate())
	assert.Equal(t, 0.0, v.AvgValuePerConversion())
	assert.Equal(t, 0.0, v.ValuePerExposure())
}

func TestNewVariant_Invalid(t *testing.T) {
	tests := []struct {
		name string
		agg  experiment.Aggregate
	}{
		{"missing name", experiment.Aggregate{Exposures: 1}},
		{"negative exposures", experiment.Aggregate{Name: "A", Exposures: -1}},
		{"negative conversions", experiment.Aggregate{Name: "A", Exposures: 1, Conversions: -1}},
		{"more conversions than exposures", experiment.Aggregate{Name: "A", Exposures: 1, Conversions: 2}},
		{"negative value", experiment.Aggregate{Name: "A", Exposures: 1, TotalValue: -3}},
		{"NaN value", experiment.Aggregate{Name: "A", Exposures: 1, TotalValue: math.NaN()}},
		{"infinite value", experiment.Aggregate{Name: "A", Exposures: 1, TotalValue: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := experiment.NewVariant(tt.agg)
			assert.ErrorIs(t, err, experiment.ErrValidation)
		})
	}
}

func TestVariantFromRows(t *testing.T) {
	rows := []experiment.Row{
		{Alternative: "A", Converted: 1, Value: 12},
		{Alternative: "B", Converted: 1, Value: 99},
		{Alternative: "A", Converted: 0, Value: 0},
		{Alternative: "A", Converted: 1, Value: 8},
		{Alternative: "A", Converted: 0, Value: 0},
	}

	v, err := experiment.VariantFromRows("A", rows)
	require.NoError(t, err)

	assert.Equal(t, 4, v.Exposures())
	assert.Equal(t, 2, v.Conversions())
	assert.InDelta(t, 20.0, v.TotalValue(), 1e-12)
	assert.True(t, v.HasRows())

	assert.Equal(t, []float64{1, 0, 1, 0}, v.ResampleData(stats.Conversion))
	assert.Equal(t, []float64{12, 8}, v.ResampleData(stats.ValuePerConversion))
	assert.Equal(t, []float64{12, 0, 8, 0}, v.ResampleData(stats.ValuePerExposure))
}

func TestVariantFromRows_Invalid(t *testing.T) {
	_, err := experiment.VariantFromRows("A", []experiment.Row{{Alternative: "A", Converted: 2}})
	assert.ErrorIs(t, err, experiment.ErrValidation)

	_, err = experiment.VariantFromRows("A", []experiment.Row{{Alternative: "A", Converted: 1, Value: -1}})
	assert.ErrorIs(t, err, experiment.ErrValidation)

	_, err = experiment.VariantFromRows("A", []experiment.Row{{Alternative: "B", Converted: 1}})
	assert.ErrorIs(t, err, experiment.ErrValidation)
}
