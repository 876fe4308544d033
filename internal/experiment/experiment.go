// Package experiment evaluates a two-variant experiment with conjugate
// posteriors and Monte Carlo comparison.
//
// A run moves through Initialized, Consolidated, Evaluated (once per metric)
// and Reported. Every configuration and validation error is returned before
// the first posterior draw, and a failed run produces no report.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/headline-goat/janus/internal/stats"
)

// State is the stage a run has reached.
type State int

const (
	StateInitialized State = iota
	StateConsolidated
	StateEvaluated
	StateReported
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConsolidated:
		return "consolidated"
	case StateEvaluated:
		return "evaluated"
	case StateReported:
		return "reported"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Experiment evaluates runs of one named experiment. It keeps no state
// between runs and is safe for concurrent use.
type Experiment struct {
	name string
	cfg  Config
	log  *slog.Logger
}

// New validates cfg and returns an experiment ready to run. A nil logger
// discards output.
func New(name string, cfg Config, logger *slog.Logger) (*Experiment, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Experiment{
		name: name,
		cfg:  cfg,
		log:  logger.With("experiment", name),
	}, nil
}

// Config returns the normalized configuration.
func (e *Experiment) Config() Config {
	return e.cfg
}

// Run evaluates per-exposure rows. The rows must carry exactly two distinct
// alternative labels, one of them the configured baseline.
func (e *Experiment) Run(ctx context.Context, rows []Row) (*Report, error) {
	labels := make([]string, 0, 2)
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Alternative] {
			seen[r.Alternative] = true
			labels = append(labels, r.Alternative)
		}
	}

	treatment, err := e.treatment(labels)
	if err != nil {
		return nil, err
	}

	baseline, err := VariantFromRows(e.cfg.BaselineVariantName, rows)
	if err != nil {
		return nil, err
	}
	other, err := VariantFromRows(treatment, rows)
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, baseline, other)
}

// RunAggregates evaluates summary counts, one entry per variant.
func (e *Experiment) RunAggregates(ctx context.Context, aggs []Aggregate) (*Report, error) {
	if e.cfg.BootstrapEnabled {
		return nil, fmt.Errorf("%w: bootstrap needs per-exposure rows, not aggregates", ErrConfiguration)
	}

	labels := make([]string, 0, len(aggs))
	byName := make(map[string]Aggregate, len(aggs))
	for _, a := range aggs {
		if _, dup := byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: variant %q is listed more than once", ErrConfiguration, a.Name)
		}
		byName[a.Name] = a
		labels = append(labels, a.Name)
	}

	treatment, err := e.treatment(labels)
	if err != nil {
		return nil, err
	}

	baseline, err := NewVariant(byName[e.cfg.BaselineVariantName])
	if err != nil {
		return nil, err
	}
	other, err := NewVariant(byName[treatment])
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, baseline, other)
}

// treatment checks the discovered labels and returns the non-baseline one.
func (e *Experiment) treatment(labels []string) (string, error) {
	if len(labels) != 2 {
		return "", fmt.Errorf("%w: experiment has %d variants (%s), exactly two are required",
			ErrConfiguration, len(labels), strings.Join(labels, ", "))
	}

	switch e.cfg.BaselineVariantName {
	case labels[0]:
		return labels[1], nil
	case labels[1]:
		return labels[0], nil
	}
	return "", fmt.Errorf("%w: baseline variant %q is not present in the data (found %s)",
		ErrConfiguration, e.cfg.BaselineVariantName, strings.Join(labels, ", "))
}

func (e *Experiment) execute(ctx context.Context, baseline, treatment *Variant) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	start := time.Now()
	r := &run{
		cfg:      e.cfg,
		log:      e.log.With("seed", seed),
		state:    StateInitialized,
		seed:     seed,
		variants: [2]*Variant{baseline, treatment},
	}
	for i := range r.variants {
		r.draws[i] = make(map[stats.Metric][]float64)
		r.compared[i] = make(map[stats.Metric][]float64)
		r.results[i] = make(map[stats.Metric]MetricResult)
	}

	r.log.Info("evaluating experiment",
		"baseline", baseline.Name(),
		"treatment", treatment.Name(),
		"metrics", len(e.cfg.KeyMetrics),
		"sample_size", e.cfg.SampleSize,
	)
	r.advance(StateConsolidated)

	for _, m := range e.cfg.KeyMetrics {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.evaluate(ctx, m); err != nil {
			return nil, err
		}
		r.advance(StateEvaluated, "metric", m)
	}

	report := r.report(e.name)
	r.advance(StateReported)
	r.log.Info("experiment evaluated", "duration", time.Since(start), "warnings", len(report.Warnings))

	return report, nil
}

// samplers produce, per metric, the vector compared between variants.
var samplers = map[stats.Metric]func(r *run, i int) ([]float64, error){
	stats.Conversion: func(r *run, i int) ([]float64, error) {
		return r.draw(i, stats.Conversion)
	},
	stats.ValuePerConversion: func(r *run, i int) ([]float64, error) {
		rate, err := r.draw(i, stats.ValuePerConversion)
		if err != nil {
			return nil, err
		}
		return stats.Reciprocal(rate), nil
	},
	stats.ValuePerExposure: (*run).impressionValue,
}

// run is the state of a single evaluation. It is owned by one goroutine.
type run struct {
	cfg      Config
	log      *slog.Logger
	state    State
	seed     uint64
	variants [2]*Variant

	draws    [2]map[stats.Metric][]float64
	compared [2]map[stats.Metric][]float64
	results  [2]map[stats.Metric]MetricResult
	warnings []Warning
}

func (r *run) advance(next State, attrs ...any) {
	r.state = next
	r.log.Debug("run advanced", append([]any{"state", next.String()}, attrs...)...)
}

func (r *run) evaluate(ctx context.Context, m stats.Metric) error {
	for i, v := range r.variants {
		r.log.Debug("sampling posterior", "variant", v.Name(), "metric", m)

		samples, err := samplers[m](r, i)
		if err != nil {
			return err
		}
		r.compared[i][m] = samples

		if m == stats.ValuePerConversion && v.Conversions() == 0 {
			r.warn(v.Name(), m, "no conversions; value posterior is prior-only")
		}
	}

	a, b := r.compared[0][m], r.compared[1][m]
	r.results[0][m] = r.summarize(0, m, stats.Compare(a, b))
	r.results[1][m] = r.summarize(1, m, stats.Compare(b, a))

	if r.cfg.BootstrapEnabled {
		for i := range r.variants {
			if err := r.bootstrap(ctx, i, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// draw returns the posterior draws of a base metric for variant i, sampling
// them on first use from the (variant, metric) stream.
func (r *run) draw(i int, m stats.Metric) ([]float64, error) {
	if d, ok := r.draws[i][m]; ok {
		return d, nil
	}

	post, err := stats.NewPosterior(m, r.cfg.Priors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	post.Update(r.variants[i].Observation())

	d := post.Sample(r.cfg.SampleSize, r.stream(i, m))
	r.draws[i][m] = d
	return d, nil
}

// impressionValue reuses this run's conversion and value draws when both
// exist, so the three metrics stay consistent; otherwise it samples the
// product model on its own stream.
func (r *run) impressionValue(i int) ([]float64, error) {
	conversion, okC := r.draws[i][stats.Conversion]
	rate, okV := r.draws[i][stats.ValuePerConversion]
	if okC && okV {
		return stats.DeriveImpressionValue(conversion, rate), nil
	}
	return r.draw(i, stats.ValuePerExposure)
}

func (r *run) summarize(i int, m stats.Metric, cmp stats.Comparison) MetricResult {
	self, other := r.variants[i], r.variants[1-i]
	samples := r.compared[i][m]

	res := MetricResult{
		ChanceToBeat:  cmp.ChanceToBeat,
		ExpectedLoss:  cmp.ExpectedLoss,
		PosteriorMean: stats.Mean(samples),
		Lift:          Lift(self.Observed(m), other.Observed(m)),
		Diff:          self.Observed(m) - other.Observed(m),
	}

	if m == stats.Conversion {
		post := stats.NewBetaPosterior(r.cfg.Priors.ConversionAlpha, r.cfg.Priors.ConversionBeta)
		post.Update(self.Observation())
		res.Interval.Lower, res.Interval.Upper = post.Interval(r.cfg.CredibleLevel)
	} else {
		res.Interval.Lower, res.Interval.Upper = stats.CredibleInterval(samples, r.cfg.CredibleLevel)
	}
	return res
}

func (r *run) bootstrap(ctx context.Context, i int, m stats.Metric) error {
	v := r.variants[i]
	data := v.ResampleData(m)
	if len(data) == 0 {
		r.warn(v.Name(), m, "no observations to bootstrap")
		return nil
	}

	values, err := stats.Bootstrap(ctx, data, r.cfg.BootstrapSamples, stats.BootstrapOptions{
		Workers: r.cfg.BootstrapWorkers,
		Seed:    r.seed + 0x9e3779b97f4a7c15*(streamKey(i, m)+1),
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap %s for variant %q: %w", m, v.Name(), err)
	}
	summary, err := stats.Summarize(values, r.cfg.CredibleLevel)
	if err != nil {
		return fmt.Errorf("failed to summarize bootstrap of %s for variant %q: %w", m, v.Name(), err)
	}

	res := r.results[i][m]
	res.Bootstrap = &summary
	r.results[i][m] = res
	return nil
}

func (r *run) warn(variant string, m stats.Metric, msg string) {
	r.log.Warn(msg, "variant", variant, "metric", m)
	r.warnings = append(r.warnings, Warning{Variant: variant, Metric: m, Message: msg})
}

// stream is the source for variant i and metric m. The same seed always
// yields the same draws regardless of which metrics are configured.
func (r *run) stream(i int, m stats.Metric) rand.Source {
	return rand.NewPCG(r.seed, streamKey(i, m))
}

func streamKey(i int, m stats.Metric) uint64 {
	key := uint64(len(stats.Metrics))
	for k, candidate := range stats.Metrics {
		if candidate == m {
			key = uint64(k)
		}
	}
	return uint64(i)<<8 | key
}

func (r *run) report(name string) *Report {
	total := r.variants[0].Exposures() + r.variants[1].Exposures()

	report := &Report{
		ID:            uuid.NewString(),
		Name:          name,
		Baseline:      r.variants[0].Name(),
		Metrics:       append([]stats.Metric(nil), r.cfg.KeyMetrics...),
		SampleSize:    r.cfg.SampleSize,
		Seed:          r.seed,
		CredibleLevel: r.cfg.CredibleLevel,
		CreatedAt:     time.Now().UTC(),
		Warnings:      r.warnings,
	}

	for i, v := range r.variants {
		ratio := 0.0
		if total > 0 {
			ratio = float64(v.Exposures()) / float64(total)
		}

		report.Variants = append(report.Variants, VariantResult{
			Name:                  v.Name(),
			Baseline:              i == 0,
			Exposures:             v.Exposures(),
			Conversions:           v.Conversions(),
			TotalValue:            v.TotalValue(),
			ConversionRate:        v.ConversionRate(),
			AvgValuePerConversion: v.AvgValuePerConversion(),
			ValuePerExposure:      v.ValuePerExposure(),
			Ratio:                 ratio,
			Statistics:            r.results[i],
		})
	}
	return report
}
