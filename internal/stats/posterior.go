package stats

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Observation holds the sufficient statistics a posterior is updated with.
type Observation struct {
	Exposures   int
	Conversions int
	TotalValue  float64
}

// Posterior is a conjugate model over one metric.
//
// Update folds observed data into the hyperparameters in closed form and is
// called once per variant per run. Sample returns n fresh draws from src and
// never touches the hyperparameters; before Update it samples the prior.
type Posterior interface {
	Update(obs Observation)
	Sample(n int, src rand.Source) []float64
}

// Priors are the hyperparameters every posterior starts from.
type Priors struct {
	ConversionAlpha float64 `yaml:"conversion_alpha" json:"conversion_alpha"`
	ConversionBeta  float64 `yaml:"conversion_beta" json:"conversion_beta"`
	ValueShape      float64 `yaml:"value_shape" json:"value_shape"`
	ValueScale      float64 `yaml:"value_scale" json:"value_scale"`
}

// DefaultPriors returns Beta(1,1) for conversion and Gamma(1,1) for value.
func DefaultPriors() Priors {
	return Priors{
		ConversionAlpha: 1,
		ConversionBeta:  1,
		ValueShape:      1,
		ValueScale:      1,
	}
}

// Validate checks that every hyperparameter is strictly positive.
func (p Priors) Validate() error {
	for name, v := range map[string]float64{
		"conversion_alpha": p.ConversionAlpha,
		"conversion_beta":  p.ConversionBeta,
		"value_shape":      p.ValueShape,
		"value_scale":      p.ValueScale,
	} {
		if !(v > 0) {
			return fmt.Errorf("prior %s must be positive, got %v", name, v)
		}
	}
	return nil
}

// posteriors selects the model for each metric.
var posteriors = map[Metric]func(Priors) Posterior{
	Conversion: func(p Priors) Posterior {
		return NewBetaPosterior(p.ConversionAlpha, p.ConversionBeta)
	},
	ValuePerConversion: func(p Priors) Posterior {
		return NewGammaPosterior(p.ValueShape, p.ValueScale)
	},
	ValuePerExposure: func(p Priors) Posterior {
		return NewImpressionValuePosterior(p)
	},
}

// NewPosterior returns a prior-only model for metric m.
func NewPosterior(m Metric, priors Priors) (Posterior, error) {
	build, ok := posteriors[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, string(m))
	}
	return build(priors), nil
}

// BetaPosterior models the true conversion probability.
type BetaPosterior struct {
	Alpha float64
	Beta  float64
}

func NewBetaPosterior(alpha, beta float64) *BetaPosterior {
	return &BetaPosterior{Alpha: alpha, Beta: beta}
}

func (p *BetaPosterior) Update(obs Observation) {
	p.Alpha += float64(obs.Conversions)
	p.Beta += float64(obs.Exposures - obs.Conversions)
}

func (p *BetaPosterior) Sample(n int, src rand.Source) []float64 {
	d := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

// Mean is the closed-form posterior mean alpha/(alpha+beta).
func (p *BetaPosterior) Mean() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

// Interval returns the equal-tailed credible interval holding level of the
// posterior mass. Bounds are clamped to [0, 1].
func (p *BetaPosterior) Interval(level float64) (lower, upper float64) {
	d := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta}
	tail := (1 - level) / 2

	lower = d.Quantile(tail)
	upper = d.Quantile(1 - tail)

	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}

// GammaPosterior models the inverse-scale parameter of per-conversion value.
// Larger draws mean smaller average value; compare Reciprocal(samples).
type GammaPosterior struct {
	Shape float64
	Scale float64
}

func NewGammaPosterior(shape, scale float64) *GammaPosterior {
	return &GammaPosterior{Shape: shape, Scale: scale}
}

// Update adds one unit of shape per conversion and the total value to the
// rate. With the default Gamma(1,1) prior this is k += conversions,
// theta = 1/(1 + total_value).
func (p *GammaPosterior) Update(obs Observation) {
	p.Shape += float64(obs.Conversions)
	p.Scale = 1 / (1/p.Scale + obs.TotalValue)
}

func (p *GammaPosterior) Sample(n int, src rand.Source) []float64 {
	d := distuv.Gamma{Alpha: p.Shape, Beta: 1 / p.Scale, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

// ImpressionValuePosterior approximates value per exposure as the product of
// independent conversion and average-value draws. It is not a joint
// posterior.
type ImpressionValuePosterior struct {
	Conversion *BetaPosterior
	Value      *GammaPosterior
}

func NewImpressionValuePosterior(p Priors) *ImpressionValuePosterior {
	return &ImpressionValuePosterior{
		Conversion: NewBetaPosterior(p.ConversionAlpha, p.ConversionBeta),
		Value:      NewGammaPosterior(p.ValueShape, p.ValueScale),
	}
}

func (p *ImpressionValuePosterior) Update(obs Observation) {
	p.Conversion.Update(obs)
	p.Value.Update(obs)
}

func (p *ImpressionValuePosterior) Sample(n int, src rand.Source) []float64 {
	conversion := p.Conversion.Sample(n, src)
	rate := p.Value.Sample(n, src)
	return DeriveImpressionValue(conversion, rate)
}

// DeriveImpressionValue combines conversion draws with Gamma rate draws as
// conversion[i] / rate[i]. A zero rate yields 0.
func DeriveImpressionValue(conversion, rate []float64) []float64 {
	mustMatch(conversion, rate)

	out := make([]float64, len(conversion))
	for i := range conversion {
		if rate[i] == 0 {
			continue
		}
		out[i] = conversion[i] / rate[i]
	}
	return out
}
