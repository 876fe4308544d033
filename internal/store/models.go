package store

import (
	"time"

	"github.com/headline-goat/janus/internal/ingest"
)

type Experiment struct {
	ID        int64
	Name      string
	Baseline  string // Optional default baseline for analysis
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Observation is what one alternative saw during one period. Recording the
// same (experiment, alternative, period) again replaces the figures.
type Observation struct {
	ID          int64
	Experiment  string
	Alternative string
	Period      string
	Exposures   int
	Conversions int
	Value       float64
	UpdatedAt   time.Time
}

// ExperimentSummary is an experiment with its observation totals.
type ExperimentSummary struct {
	Experiment
	Alternatives int
	Periods      int
	Exposures    int
	Conversions  int
	Value        float64
}

// Summary converts o to the ingest summary form.
func (o *Observation) Summary() ingest.SummaryRow {
	return ingest.SummaryRow{
		Alternative: o.Alternative,
		Period:      o.Period,
		Exposures:   o.Exposures,
		Conversions: o.Conversions,
		Value:       o.Value,
	}
}

// ObservationFromSummary builds an observation of experiment from a summary
// row.
func ObservationFromSummary(experiment string, r ingest.SummaryRow) Observation {
	return Observation{
		Experiment:  experiment,
		Alternative: r.Alternative,
		Period:      r.Period,
		Exposures:   r.Exposures,
		Conversions: r.Conversions,
		Value:       r.Value,
	}
}

// Summaries converts observations to summary rows, keeping their order.
func Summaries(obs []*Observation) []ingest.SummaryRow {
	out := make([]ingest.SummaryRow, len(obs))
	for i, o := range obs {
		out[i] = o.Summary()
	}
	return out
}
