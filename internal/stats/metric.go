package stats

import (
	"errors"
	"fmt"
	"strings"
)

// Metric identifies one of the quantities compared between variants.
type Metric string

const (
	Conversion         Metric = "conversion"
	ValuePerConversion Metric = "value_per_conversion"
	ValuePerExposure   Metric = "value_per_exposure"
)

// Metrics lists every supported metric in evaluation order.
var Metrics = []Metric{Conversion, ValuePerConversion, ValuePerExposure}

var ErrUnknownMetric = errors.New("unknown metric")

// aliases accepts the names used by older reports (revenue, ticket, arpu).
var aliases = map[string]Metric{
	"conversion":           Conversion,
	"value_per_conversion": ValuePerConversion,
	"revenue":              ValuePerConversion,
	"ticket":               ValuePerConversion,
	"avg_ticket":           ValuePerConversion,
	"value_per_exposure":   ValuePerExposure,
	"arpu":                 ValuePerExposure,
	"impression_value":     ValuePerExposure,
}

// ParseMetric resolves a metric name, case-insensitively.
func ParseMetric(name string) (Metric, error) {
	m, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case Conversion, ValuePerConversion, ValuePerExposure:
		return true
	}
	return false
}

func (m Metric) String() string {
	return string(m)
}

// Label is the human-readable column heading for m.
func (m Metric) Label() string {
	switch m {
	case Conversion:
		return "Conversion"
	case ValuePerConversion:
		return "Value per conversion"
	case ValuePerExposure:
		return "Value per exposure"
	}
	return string(m)
}
