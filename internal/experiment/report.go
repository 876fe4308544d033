package experiment

import (
	"encoding/json"
	"math"
	"time"

	"github.com/headline-goat/janus/internal/stats"
)

// Interval is an equal-tailed credible interval.
type Interval struct {
	Lower float64
	Upper float64
}

// MetricResult is the verdict for one variant on one metric against the
// other variant.
type MetricResult struct {
	ChanceToBeat  float64
	ExpectedLoss  float64
	PosteriorMean float64
	Lift          float64
	Diff          float64
	Interval      Interval
	Bootstrap     *stats.BootstrapSummary
}

// VariantResult is the consolidated outcome of one variant.
type VariantResult struct {
	Name                  string
	Baseline              bool
	Exposures             int
	Conversions           int
	TotalValue            float64
	ConversionRate        float64
	AvgValuePerConversion float64
	ValuePerExposure      float64
	Ratio                 float64
	Statistics            map[stats.Metric]MetricResult
}

// Report is the immutable result of a run. Variants lists the baseline
// first.
type Report struct {
	ID         string
	Name       string
	Baseline   string
	Metrics    []stats.Metric
	SampleSize int
	Seed       uint64

	// CredibleLevel is the level of every Interval in the report.
	CredibleLevel float64
	CreatedAt     time.Time
	Variants      []VariantResult
	Warnings      []Warning
}

// Variant looks up a variant result by name.
func (r *Report) Variant(name string) (VariantResult, bool) {
	for _, v := range r.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantResult{}, false
}

// ByName maps variant names to their results.
func (r *Report) ByName() map[string]VariantResult {
	out := make(map[string]VariantResult, len(r.Variants))
	for _, v := range r.Variants {
		out[v.Name] = v
	}
	return out
}

// Leader returns the variant with the highest chance to beat on m. Ties go
// to the baseline.
func (r *Report) Leader(m stats.Metric) (VariantResult, bool) {
	var (
		leader VariantResult
		best   = -1.0
		found  bool
	)
	for _, v := range r.Variants {
		res, ok := v.Statistics[m]
		if !ok {
			continue
		}
		if res.ChanceToBeat > best {
			best = res.ChanceToBeat
			leader = v
			found = true
		}
	}
	return leader, found
}

// Winner returns the leader on m when its chance to beat reaches threshold.
func (r *Report) Winner(m stats.Metric, threshold float64) (VariantResult, bool) {
	leader, ok := r.Leader(m)
	if !ok || leader.Statistics[m].ChanceToBeat < threshold {
		return VariantResult{}, false
	}
	return leader, true
}

// Lift is self/other - 1 when self is positive and 0 otherwise, whatever
// other is. A positive self against a zero other gives +Inf.
func Lift(self, other float64) float64 {
	if self > 0 {
		return self/other - 1
	}
	return 0.0
}

type jsonInterval struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

type jsonMetric struct {
	ChanceToBeat  *float64                `json:"chance_to_beat"`
	ExpectedLoss  *float64                `json:"expected_loss"`
	PosteriorMean *float64                `json:"posterior_mean"`
	Lift          *float64                `json:"lift"`
	Diff          *float64                `json:"diff"`
	Interval      jsonInterval            `json:"interval"`
	Bootstrap     *stats.BootstrapSummary `json:"bootstrap,omitempty"`
}

type jsonVariant struct {
	Baseline              bool                        `json:"baseline"`
	Exposures             int                         `json:"exposures"`
	Conversions           int                         `json:"conversions"`
	TotalValue            float64                     `json:"total_value"`
	ConversionRate        float64                     `json:"conversion_rate"`
	AvgValuePerConversion float64                     `json:"avg_value_per_conversion"`
	ValuePerExposure      float64                     `json:"value_per_exposure"`
	Ratio                 float64                     `json:"ratio"`
	Statistics            map[stats.Metric]jsonMetric `json:"statistics"`
}

type jsonReport struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Baseline   string                 `json:"baseline"`
	Metrics    []stats.Metric         `json:"metrics"`
	SampleSize int                    `json:"sample_size"`
	Seed       uint64                 `json:"seed"`
	Level      float64                `json:"credible_level"`
	CreatedAt  time.Time              `json:"created_at"`
	Order      []string               `json:"order"`
	Variants   map[string]jsonVariant `json:"variants"`
	Warnings   []Warning              `json:"warnings"`
}

// MarshalJSON encodes the report as a mapping from variant name to results.
// Non-finite numbers, such as the lift against a zero baseline, become null.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := jsonReport{
		ID:         r.ID,
		Name:       r.Name,
		Baseline:   r.Baseline,
		Metrics:    r.Metrics,
		SampleSize: r.SampleSize,
		Seed:       r.Seed,
		Level:      r.CredibleLevel,
		CreatedAt:  r.CreatedAt,
		Order:      make([]string, 0, len(r.Variants)),
		Variants:   make(map[string]jsonVariant, len(r.Variants)),
		Warnings:   r.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []Warning{}
	}

	for _, v := range r.Variants {
		jv := jsonVariant{
			Baseline:              v.Baseline,
			Exposures:             v.Exposures,
			Conversions:           v.Conversions,
			TotalValue:            v.TotalValue,
			ConversionRate:        v.ConversionRate,
			AvgValuePerConversion: v.AvgValuePerConversion,
			ValuePerExposure:      v.ValuePerExposure,
			Ratio:                 v.Ratio,
			Statistics:            make(map[stats.Metric]jsonMetric, len(v.Statistics)),
		}
		for m, res := range v.Statistics {
			jv.Statistics[m] = jsonMetric{
				ChanceToBeat:  finite(res.ChanceToBeat),
				ExpectedLoss:  finite(res.ExpectedLoss),
				PosteriorMean: finite(res.PosteriorMean),
				Lift:          finite(res.Lift),
				Diff:          finite(res.Diff),
				Interval: jsonInterval{
					Lower: finite(res.Interval.Lower),
					Upper: finite(res.Interval.Upper),
				},
				Bootstrap: res.Bootstrap,
			}
		}
		out.Order = append(out.Order, v.Name)
		out.Variants[v.Name] = jv
	}

	return json.Marshal(out)
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}
