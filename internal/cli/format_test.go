package cli

import (
	"math"
	"testing"
)

func TestParseVariantFlag(t *testing.T) {
	agg, err := parseVariantFlag("control:1000:100:1250.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Name != "control" || agg.Exposures != 1000 || agg.Conversions != 100 || agg.TotalValue != 1250.5 {
		t.Errorf("got %+v", agg)
	}

	agg, err = parseVariantFlag(" b : 20 : 3 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Name != "b" || agg.Exposures != 20 || agg.Conversions != 3 || agg.TotalValue != 0 {
		t.Errorf("got %+v", agg)
	}
}

func TestParseVariantFlag_Invalid(t *testing.T) {
	args := []string{
		"control",
		"control:1000",
		"control:1:2:3:4",
		"control:many:1",
		"control:10:x",
		"control:10:1:free",
	}
	for _, arg := range args {
		if _, err := parseVariantFlag(arg); err == nil {
			t.Errorf("expected error for %q", arg)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1000000, "1,000,000"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		x    float64
		want string
	}{
		{0, "0.00"},
		{1.005, "1.01"},
		{999.9, "999.90"},
		{1234567.891, "1,234,567.89"},
		{-1500, "-1,500.00"},
		{math.Inf(1), "n/a"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.x); got != tt.want {
			t.Errorf("formatMoney(%v) = %q, want %q", tt.x, got, tt.want)
		}
	}
}

func TestFormatLift(t *testing.T) {
	if got := formatLift(0.5); got != "+50.00%" {
		t.Errorf("got %q", got)
	}
	if got := formatLift(-0.25); got != "-25.00%" {
		t.Errorf("got %q", got)
	}
	if got := formatLift(0); got != "0%" {
		t.Errorf("got %q", got)
	}
	if got := formatLift(math.Inf(1)); got != "n/a" {
		t.Errorf("got %q", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0.1234); got != "12.34%" {
		t.Errorf("got %q", got)
	}
	if got := formatPercent(0); got != "0%" {
		t.Errorf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short"); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("a-very-long-variant-name"); got != "a-very-long-v..." {
		t.Errorf("got %q", got)
	}
}
