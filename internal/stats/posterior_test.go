package stats_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/headline-goat/janus/internal/stats"
)

func TestBetaPosterior_Update(t *testing.T) {
	p := stats.NewBetaPosterior(1, 1)
	p.Update(stats.Observation{Exposures: 1000, Conversions: 100, TotalValue: 1000})

	if p.Alpha != 101 || p.Beta != 901 {
		t.Errorf("expected Beta(101, 901), got Beta(%v, %v)", p.Alpha, p.Beta)
	}
	if math.Abs(p.Mean()-101.0/1002.0) > 1e-12 {
		t.Errorf("unexpected posterior mean %f", p.Mean())
	}
}

func TestBetaPosterior_SampleMatchesMean(t *testing.T) {
	p := stats.NewBetaPosterior(101, 901)
	samples := p.Sample(50000, rand.NewPCG(1, 2))

	if len(samples) != 50000 {
		t.Fatalf("expected 50000 samples, got %d", len(samples))
	}
	for _, s := range samples {
		if s < 0 || s > 1 {
			t.Fatalf("sample %f outside [0, 1]", s)
		}
	}
	if got := stats.Mean(samples); math.Abs(got-p.Mean()) > 0.002 {
		t.Errorf("sample mean %f too far from %f", got, p.Mean())
	}
}

func TestBetaPosterior_SampleDoesNotMutate(t *testing.T) {
	p := stats.NewBetaPosterior(3, 4)
	first := p.Sample(10, rand.NewPCG(1, 1))
	second := p.Sample(10, rand.NewPCG(1, 2))

	if p.Alpha != 3 || p.Beta != 4 {
		t.Errorf("sampling changed hyperparameters to (%v, %v)", p.Alpha, p.Beta)
	}
	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
		}
	}
	if same {
		t.Error("expected independent draws from different streams")
	}
}

func TestBetaPosterior_Interval(t *testing.T) {
	p := stats.NewBetaPosterior(51, 51)
	lower, upper := p.Interval(0.95)

	if lower < 0.39 || lower > 0.42 {
		t.Errorf("lower bound %f not in expected range [0.39, 0.42]", lower)
	}
	if upper < 0.58 || upper > 0.61 {
		t.Errorf("upper bound %f not in expected range [0.58, 0.61]", upper)
	}
}

func TestGammaPosterior_Update(t *testing.T) {
	p := stats.NewGammaPosterior(1, 1)
	p.Update(stats.Observation{Exposures: 1000, Conversions: 100, TotalValue: 1000})

	if p.Shape != 101 {
		t.Errorf("expected shape 101, got %v", p.Shape)
	}
	if math.Abs(p.Scale-1.0/1001.0) > 1e-15 {
		t.Errorf("expected scale 1/1001, got %v", p.Scale)
	}
}

func TestGammaPosterior_ReciprocalTracksAverageValue(t *testing.T) {
	p := stats.NewGammaPosterior(1, 1)
	p.Update(stats.Observation{Exposures: 1000, Conversions: 400, TotalValue: 4000})

	avg := stats.Mean(stats.Reciprocal(p.Sample(50000, rand.NewPCG(3, 4))))
	// E[1/lambda] = rate/(shape-1) = 4001/400
	if math.Abs(avg-4001.0/400.0) > 0.1 {
		t.Errorf("expected average value near 10, got %f", avg)
	}
}

func TestGammaPosterior_ZeroConversionsStaysPrior(t *testing.T) {
	p := stats.NewGammaPosterior(1, 1)
	p.Update(stats.Observation{Exposures: 500})

	if p.Shape != 1 || p.Scale != 1 {
		t.Errorf("expected prior-only Gamma(1, 1), got Gamma(%v, %v)", p.Shape, p.Scale)
	}
	for _, s := range p.Sample(1000, rand.NewPCG(5, 6)) {
		if math.IsNaN(s) || s < 0 {
			t.Fatalf("invalid prior draw %f", s)
		}
	}
}

func TestDeriveImpressionValue(t *testing.T) {
	conversion := []float64{0.1, 0.2, 0.5}
	rate := []float64{0.1, 0, 0.25}

	got := stats.DeriveImpressionValue(conversion, rate)
	want := []float64{1, 0, 2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestImpressionValuePosterior_ProductOfParts(t *testing.T) {
	p := stats.NewImpressionValuePosterior(stats.DefaultPriors())
	p.Update(stats.Observation{Exposures: 1000, Conversions: 100, TotalValue: 1000})

	got := stats.Mean(p.Sample(50000, rand.NewPCG(8, 9)))
	// observed value per exposure is 1.0
	if got < 0.9 || got > 1.15 {
		t.Errorf("expected value per exposure near 1.0, got %f", got)
	}
}

func TestNewPosterior_LookupTable(t *testing.T) {
	for _, m := range stats.Metrics {
		p, err := stats.NewPosterior(m, stats.DefaultPriors())
		if err != nil {
			t.Fatalf("NewPosterior(%s) failed: %v", m, err)
		}
		if got := p.Sample(3, rand.NewPCG(1, 1)); len(got) != 3 {
			t.Errorf("%s: expected 3 prior draws, got %d", m, len(got))
		}
	}

	if _, err := stats.NewPosterior("bounce_rate", stats.DefaultPriors()); !errors.Is(err, stats.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want stats.Metric
	}{
		{"conversion", stats.Conversion},
		{" Revenue ", stats.ValuePerConversion},
		{"value_per_conversion", stats.ValuePerConversion},
		{"ARPU", stats.ValuePerExposure},
		{"value_per_exposure", stats.ValuePerExposure},
	}

	for _, tt := range tests {
		got, err := stats.ParseMetric(tt.in)
		if err != nil {
			t.Errorf("ParseMetric(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := stats.ParseMetric("clicks"); !errors.Is(err, stats.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric for clicks, got %v", err)
	}
}

func TestPriors_Validate(t *testing.T) {
	if err := stats.DefaultPriors().Validate(); err != nil {
		t.Errorf("default priors should be valid: %v", err)
	}

	bad := stats.DefaultPriors()
	bad.ValueScale = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero value scale")
	}
}
