package store

import "context"

// Store defines the interface for observation storage. It keeps experiment
// inputs only; reports are always recomputed.
type Store interface {
	// Experiment operations
	SaveExperiment(ctx context.Context, name, baseline string) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*ExperimentSummary, error)
	DeleteExperiment(ctx context.Context, name string) error

	// Observation operations
	RecordObservation(ctx context.Context, obs Observation) error
	ImportObservations(ctx context.Context, experiment string, obs []Observation) (int, error)
	GetObservations(ctx context.Context, experiment string) ([]*Observation, error)

	// Lifecycle
	Close() error
}
