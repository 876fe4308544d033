package ingest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/headline-goat/janus/internal/experiment"
)

// Scenario describes a synthetic two-variant experiment.
type Scenario struct {
	Exposures     int     `yaml:"exposures" json:"exposures"`
	BaselineShare float64 `yaml:"baseline_share" json:"baseline_share"`

	BaselineName  string `yaml:"baseline_name" json:"baseline_name"`
	TreatmentName string `yaml:"treatment_name" json:"treatment_name"`

	BaselineConversion  float64 `yaml:"baseline_conversion" json:"baseline_conversion"`
	TreatmentConversion float64 `yaml:"treatment_conversion" json:"treatment_conversion"`
	BaselineAvgValue    float64 `yaml:"baseline_avg_value" json:"baseline_avg_value"`
	TreatmentAvgValue   float64 `yaml:"treatment_avg_value" json:"treatment_avg_value"`
}

// DefaultScenario is an even split of 10,000 exposures where the treatment
// converts slightly better at the same average value.
func DefaultScenario() Scenario {
	return Scenario{
		Exposures:           10_000,
		BaselineShare:       0.5,
		BaselineName:        "baseline",
		TreatmentName:       "test",
		BaselineConversion:  0.10,
		TreatmentConversion: 0.12,
		BaselineAvgValue:    50,
		TreatmentAvgValue:   50,
	}
}

var errScenario = errors.New("invalid scenario")

func (s Scenario) validate() error {
	switch {
	case s.Exposures <= 0:
		return fmt.Errorf("%w: exposures must be positive", errScenario)
	case s.BaselineShare <= 0 || s.BaselineShare >= 1:
		return fmt.Errorf("%w: baseline share must be in (0, 1)", errScenario)
	case s.BaselineName == "" || s.TreatmentName == "" || s.BaselineName == s.TreatmentName:
		return fmt.Errorf("%w: two distinct variant names are required", errScenario)
	case !inUnit(s.BaselineConversion) || !inUnit(s.TreatmentConversion):
		return fmt.Errorf("%w: conversion rates must be in [0, 1]", errScenario)
	case s.BaselineAvgValue < 0 || s.TreatmentAvgValue < 0:
		return fmt.Errorf("%w: average values must not be negative", errScenario)
	}
	return nil
}

func inUnit(x float64) bool { return x >= 0 && x <= 1 }

// Synthesize generates per-exposure rows for s. Each arm converts
// ceil(exposures*rate) rows; their payments are the reciprocal of draws from
// Gamma(1+paid, rate 1+paid*avg), rounded to cents. Rows are shuffled. The
// same seed gives the same rows.
func Synthesize(s Scenario, seed uint64) ([]experiment.Row, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, 0x5eed))

	baseline := int(math.Round(s.BaselineShare * float64(s.Exposures)))
	rows := make([]experiment.Row, 0, s.Exposures)
	rows = appendArm(rows, rng, s.BaselineName, baseline, s.BaselineConversion, s.BaselineAvgValue)
	rows = appendArm(rows, rng, s.TreatmentName, s.Exposures-baseline, s.TreatmentConversion, s.TreatmentAvgValue)

	rng.Shuffle(len(rows), func(i, j int) {
		rows[i], rows[j] = rows[j], rows[i]
	})
	return rows, nil
}

func appendArm(rows []experiment.Row, rng *rand.Rand, name string, exposures int, rate, avg float64) []experiment.Row {
	paid := int(math.Ceil(float64(exposures) * rate))
	if paid > exposures {
		paid = exposures
	}

	payments := distuv.Gamma{
		Alpha: 1 + float64(paid),
		Beta:  1 + float64(paid)*avg,
		Src:   rng,
	}
	for i := 0; i < paid; i++ {
		value := decimal.NewFromFloat(1 / payments.Rand()).Round(2).InexactFloat64()
		rows = append(rows, experiment.Row{Alternative: name, Converted: 1, Value: value})
	}
	for i := paid; i < exposures; i++ {
		rows = append(rows, experiment.Row{Alternative: name})
	}
	return rows
}
