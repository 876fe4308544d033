package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/stats"
	"github.com/headline-goat/janus/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// engineFlags are the evaluation options shared by every command that runs
// an experiment. Explicit flags win over the --config file.
type engineFlags struct {
	baseline         string
	metrics          []string
	sampleSize       int
	seed             uint64
	level            float64
	bootstrap        bool
	bootstrapSamples int
	workers          int
	threshold        float64
	jsonOut          bool
}

func (f *engineFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.baseline, "baseline", "b", "", "baseline variant name")
	flags.StringSliceVarP(&f.metrics, "metrics", "m", nil, "metrics to evaluate (default all)")
	flags.IntVarP(&f.sampleSize, "samples", "n", getEnvIntOrDefault("JANUS_SAMPLE_SIZE", experiment.DefaultSampleSize), "posterior draws per variant and metric")
	flags.Uint64Var(&f.seed, "seed", 0, "random seed (0 picks one and reports it)")
	flags.Float64Var(&f.level, "level", experiment.DefaultCredibleLevel, "credible interval level")
	flags.BoolVar(&f.bootstrap, "bootstrap", false, "add bootstrap estimates (needs per-exposure rows)")
	flags.IntVar(&f.bootstrapSamples, "bootstrap-samples", experiment.DefaultBootstrapSamples, "bootstrap resamples")
	flags.IntVar(&f.workers, "workers", 0, "bootstrap workers (default GOMAXPROCS)")
	flags.Float64Var(&f.threshold, "threshold", experiment.DefaultWinThreshold, "chance to beat needed to call a winner")
	flags.BoolVar(&f.jsonOut, "json", false, "print the report as JSON")
}

// config loads --config, or the defaults, and applies the flags the user set.
func (f *engineFlags) config(cmd *cobra.Command) (experiment.Config, error) {
	cfg := experiment.DefaultConfig()
	if configPath != "" {
		loaded, err := experiment.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("baseline") {
		cfg.BaselineVariantName = f.baseline
	}
	if flags.Changed("metrics") {
		cfg.KeyMetrics = make([]stats.Metric, len(f.metrics))
		for i, m := range f.metrics {
			cfg.KeyMetrics[i] = stats.Metric(m)
		}
	}
	if flags.Changed("samples") || configPath == "" {
		cfg.SampleSize = f.sampleSize
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("level") {
		cfg.CredibleLevel = f.level
	}
	if flags.Changed("bootstrap") {
		cfg.BootstrapEnabled = f.bootstrap
	}
	if flags.Changed("bootstrap-samples") {
		cfg.BootstrapSamples = f.bootstrapSamples
	}
	if flags.Changed("workers") {
		cfg.BootstrapWorkers = f.workers
	}
	return cfg, nil
}

// newExperiment builds the engine with a logger on the command's stderr.
func newExperiment(cmd *cobra.Command, name string, cfg experiment.Config) (*experiment.Experiment, error) {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return experiment.New(name, cfg, logger)
}
