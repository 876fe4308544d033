package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Comparison is the Monte Carlo verdict of one variant against another on a
// single metric.
type Comparison struct {
	ChanceToBeat float64
	ExpectedLoss float64
}

// Compare runs ChanceToBeat and ExpectedLoss on the same pair of vectors.
//
// Both vectors must hold draws of the same quantity. Value-per-conversion
// posteriors sample the inverse scale, so callers pass Reciprocal(samples)
// for that metric rather than the raw draws.
func Compare(self, other []float64) Comparison {
	return Comparison{
		ChanceToBeat: ChanceToBeat(self, other),
		ExpectedLoss: ExpectedLoss(self, other),
	}
}

// ChanceToBeat estimates P(self > other) as the share of indices where
// self[i] > other[i]. It panics if the lengths differ.
func ChanceToBeat(self, other []float64) float64 {
	mustMatch(self, other)
	if len(self) == 0 {
		return 0
	}

	wins := 0
	for i := range self {
		if self[i] > other[i] {
			wins++
		}
	}
	return float64(wins) / float64(len(self))
}

// ExpectedLoss estimates the mean shortfall max(other[i]-self[i], 0) of
// choosing self, in the metric's own unit. It panics if the lengths differ.
func ExpectedLoss(self, other []float64) float64 {
	mustMatch(self, other)
	if len(self) == 0 {
		return 0
	}

	var loss float64
	for i := range self {
		if d := other[i] - self[i]; d > 0 {
			loss += d
		}
	}
	return loss / float64(len(self))
}

// Reciprocal returns 1/x for every draw, mapping 0 to 0.
func Reciprocal(samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i, x := range samples {
		if x == 0 {
			continue
		}
		out[i] = 1 / x
	}
	return out
}

// Mean is the arithmetic mean of the draws, 0 for an empty vector.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// CredibleInterval returns the empirical equal-tailed interval holding level
// of the draws.
func CredibleInterval(samples []float64, level float64) (lower, upper float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	sorted := make([]float64, 0, len(samples))
	for _, x := range samples {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) == 0 {
		return 0, 0
	}
	sort.Float64s(sorted)

	tail := (1 - level) / 2
	lower = stat.Quantile(tail, stat.Empirical, sorted, nil)
	upper = stat.Quantile(1-tail, stat.Empirical, sorted, nil)
	return lower, upper
}

func mustMatch(a, b []float64) {
	if len(a) != len(b) {
		panic("stats: slice length mismatch")
	}
}
