package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/headline-goat/janus/internal/stats"
)

const (
	DefaultSampleSize       = 100_000
	DefaultBootstrapSamples = 1_000
	DefaultCredibleLevel    = 0.95
	DefaultWinThreshold     = 0.95
)

// Config holds the options of one evaluation.
type Config struct {
	BaselineVariantName string         `yaml:"baseline_variant_name" json:"baseline_variant_name"`
	KeyMetrics          []stats.Metric `yaml:"keymetrics" json:"keymetrics"`
	SampleSize          int            `yaml:"sample_size" json:"sample_size"`
	// Seed drives every random stream of a run. 0 picks a random seed, which
	// is reported back in Report.Seed.
	Seed             uint64       `yaml:"seed" json:"seed"`
	BootstrapEnabled bool         `yaml:"bootstrap_enabled" json:"bootstrap_enabled"`
	BootstrapSamples int          `yaml:"bootstrap_samples" json:"bootstrap_samples"`
	BootstrapWorkers int          `yaml:"bootstrap_workers" json:"bootstrap_workers"`
	CredibleLevel    float64      `yaml:"credible_level" json:"credible_level"`
	Priors           stats.Priors `yaml:"priors" json:"priors"`
}

// DefaultConfig evaluates every metric with 100,000 draws and no bootstrap.
// The baseline name is left for the caller.
func DefaultConfig() Config {
	return Config{
		KeyMetrics:       append([]stats.Metric(nil), stats.Metrics...),
		SampleSize:       DefaultSampleSize,
		BootstrapSamples: DefaultBootstrapSamples,
		CredibleLevel:    DefaultCredibleLevel,
		Priors:           stats.DefaultPriors(),
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// normalize fills zero-valued options with defaults and resolves metric
// aliases. It returns ErrConfiguration for values that cannot be used.
func (c Config) normalize() (Config, error) {
	if c.BaselineVariantName == "" {
		return c, fmt.Errorf("%w: baseline variant name is required", ErrConfiguration)
	}

	if len(c.KeyMetrics) == 0 {
		c.KeyMetrics = append([]stats.Metric(nil), stats.Metrics...)
	}
	metrics := make([]stats.Metric, 0, len(c.KeyMetrics))
	seen := make(map[stats.Metric]bool)
	for _, raw := range c.KeyMetrics {
		m, err := stats.ParseMetric(string(raw))
		if err != nil {
			return c, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		metrics = append(metrics, m)
	}
	c.KeyMetrics = metrics

	switch {
	case c.SampleSize == 0:
		c.SampleSize = DefaultSampleSize
	case c.SampleSize < 0:
		return c, fmt.Errorf("%w: sample size must be positive, got %d", ErrConfiguration, c.SampleSize)
	}

	if c.CredibleLevel == 0 {
		c.CredibleLevel = DefaultCredibleLevel
	}
	if !(c.CredibleLevel > 0 && c.CredibleLevel < 1) {
		return c, fmt.Errorf("%w: credible level must be in (0, 1), got %v", ErrConfiguration, c.CredibleLevel)
	}

	if c.Priors == (stats.Priors{}) {
		c.Priors = stats.DefaultPriors()
	}
	if err := c.Priors.Validate(); err != nil {
		return c, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if c.BootstrapEnabled {
		switch {
		case c.BootstrapSamples == 0:
			c.BootstrapSamples = DefaultBootstrapSamples
		case c.BootstrapSamples < 0:
			return c, fmt.Errorf("%w: bootstrap samples must be positive, got %d", ErrConfiguration, c.BootstrapSamples)
		}
		if c.BootstrapWorkers < 0 {
			return c, fmt.Errorf("%w: bootstrap workers must not be negative, got %d", ErrConfiguration, c.BootstrapWorkers)
		}
	}

	return c, nil
}
