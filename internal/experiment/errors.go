package experiment

import (
	"errors"

	"github.com/headline-goat/janus/internal/stats"
)

var (
	// ErrValidation marks malformed or inconsistent variant data.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks a run that cannot start: wrong variant count,
	// unknown baseline, unsupported metric or option.
	ErrConfiguration = errors.New("configuration error")
)

// Warning is a non-fatal numeric degeneracy absorbed during a run.
type Warning struct {
	Variant string       `json:"variant"`
	Metric  stats.Metric `json:"metric"`
	Message string       `json:"message"`
}
