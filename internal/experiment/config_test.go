package experiment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/stats"
)

func TestNew_NormalizesConfig(t *testing.T) {
	cfg := experiment.Config{
		BaselineVariantName: "A",
		KeyMetrics:          []stats.Metric{"revenue", "conversion", "avg_ticket"},
	}

	exp, err := experiment.New("checkout", cfg, nil)
	require.NoError(t, err)

	got := exp.Config()
	assert.Equal(t, []stats.Metric{stats.ValuePerConversion, stats.Conversion}, got.KeyMetrics)
	assert.Equal(t, experiment.DefaultSampleSize, got.SampleSize)
	assert.Equal(t, experiment.DefaultCredibleLevel, got.CredibleLevel)
	assert.Equal(t, stats.DefaultPriors(), got.Priors)
}

func TestNew_EmptyMetricsMeansAll(t *testing.T) {
	exp, err := experiment.New("checkout", experiment.Config{BaselineVariantName: "A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, stats.Metrics, exp.Config().KeyMetrics)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*experiment.Config)
	}{
		{"missing baseline", func(c *experiment.Config) { c.BaselineVariantName = "" }},
		{"negative sample size", func(c *experiment.Config) { c.SampleSize = -5 }},
		{"credible level of one", func(c *experiment.Config) { c.CredibleLevel = 1 }},
		{"negative credible level", func(c *experiment.Config) { c.CredibleLevel = -0.5 }},
		{"non-positive prior", func(c *experiment.Config) { c.Priors.ValueScale = 0 }},
		{"negative bootstrap samples", func(c *experiment.Config) {
			c.BootstrapEnabled = true
			c.BootstrapSamples = -1
		}},
		{"negative bootstrap workers", func(c *experiment.Config) {
			c.BootstrapEnabled = true
			c.BootstrapWorkers = -2
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := experiment.DefaultConfig()
			cfg.BaselineVariantName = "A"
			tt.mutate(&cfg)

			_, err := experiment.New("checkout", cfg, nil)
			assert.ErrorIs(t, err, experiment.ErrConfiguration)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "janus.yaml")
	content := `baseline_variant_name: control
keymetrics: [conversion, arpu]
sample_size: 5000
seed: 7
bootstrap_enabled: true
priors:
  conversion_alpha: 2
  conversion_beta: 8
  value_shape: 1
  value_scale: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := experiment.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "control", cfg.BaselineVariantName)
	assert.Equal(t, []stats.Metric{"conversion", "arpu"}, cfg.KeyMetrics)
	assert.Equal(t, 5000, cfg.SampleSize)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.True(t, cfg.BootstrapEnabled)
	assert.Equal(t, experiment.DefaultBootstrapSamples, cfg.BootstrapSamples)
	assert.Equal(t, 2.0, cfg.Priors.ConversionAlpha)

	exp, err := experiment.New("checkout", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []stats.Metric{stats.Conversion, stats.ValuePerExposure}, exp.Config().KeyMetrics)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := experiment.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
