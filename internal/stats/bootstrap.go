package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyData = errors.New("no data to resample")

// Statistic reduces one resample to a number.
type Statistic func(sample []float64) float64

// BootstrapOptions tunes Bootstrap. Zero values mean: arithmetic mean,
// GOMAXPROCS workers, seed 0.
type BootstrapOptions struct {
	Statistic Statistic
	Workers   int
	Seed      uint64
}

// BootstrapSummary condenses a bootstrap distribution.
type BootstrapSummary struct {
	Resamples int     `json:"resamples"`
	Mean      float64 `json:"mean"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// Bootstrap draws resamples samples with replacement from data, each as long
// as data, and returns the statistic of every resample.
//
// Resample i always uses the PCG stream (Seed, i), so the output does not
// depend on Workers. Workers own disjoint index ranges of the result.
func Bootstrap(ctx context.Context, data []float64, resamples int, opts BootstrapOptions) ([]float64, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	if resamples <= 0 {
		return nil, fmt.Errorf("resamples must be positive, got %d", resamples)
	}

	statistic := opts.Statistic
	if statistic == nil {
		statistic = Mean
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > resamples {
		workers = resamples
	}

	out := make([]float64, resamples)
	chunk := (resamples + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < resamples; start += chunk {
		end := min(start+chunk, resamples)

		g.Go(func() error {
			pcg := rand.NewPCG(opts.Seed, 0)
			rng := rand.New(pcg)
			buf := make([]float64, len(data))

			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				pcg.Seed(opts.Seed, uint64(i))
				for j := range buf {
					buf[j] = data[rng.IntN(len(data))]
				}
				out[i] = statistic(buf)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize reports the mean and the equal-tailed percentile interval of a
// bootstrap distribution at the given level.
func Summarize(values []float64, level float64) (BootstrapSummary, error) {
	if len(values) == 0 {
		return BootstrapSummary{}, ErrEmptyData
	}

	mean, err := mstats.Mean(values)
	if err != nil {
		return BootstrapSummary{}, fmt.Errorf("failed to compute bootstrap mean: %w", err)
	}

	// percentiles below one rank are undefined; clamp to the smallest value
	tail := math.Max(100*(1-level)/2, 100/float64(len(values)))
	lower, err := mstats.Percentile(values, tail)
	if err != nil {
		return BootstrapSummary{}, fmt.Errorf("failed to compute lower percentile: %w", err)
	}
	upper, err := mstats.Percentile(values, 100-tail)
	if err != nil {
		return BootstrapSummary{}, fmt.Errorf("failed to compute upper percentile: %w", err)
	}

	return BootstrapSummary{
		Resamples: len(values),
		Mean:      mean,
		Lower:     lower,
		Upper:     upper,
	}, nil
}
