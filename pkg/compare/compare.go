package compare

import (
	"math"

	"github.com/yurifrl/mizan/pkg/ratio"
)

// Trend is the direction a ratio moved between the base and comparison year.
type Trend string

const (
	Up      Trend = "up"
	Down    Trend = "down"
	Equal   Trend = "equal"
	Unknown Trend = "unknown"
)

// Epsilon is the smallest difference treated as a change.
const Epsilon = 1e-9

// Of compares a base and a comparison result. Unknown when either side is
// unavailable.
func Of(base, comparison *ratio.Result) Trend {
	if base == nil || comparison == nil {
		return Unknown
	}
	return Values(base.Value, comparison.Value)
}

// Values compares two available values.
func Values(base, comparison float64) Trend {
	d := comparison - base
	switch {
	case math.Abs(d) < Epsilon:
		return Equal
	case d > 0:
		return Up
	default:
		return Down
	}
}

// Change is comparison minus base, and false when either side is unavailable.
func Change(base, comparison *ratio.Result) (float64, bool) {
	if base == nil || comparison == nil {
		return 0, false
	}
	return comparison.Value - base.Value, true
}

// Symbol is a one-character marker for t.
func (t Trend) Symbol() string {
	switch t {
	case Up:
		return "▲"
	case Down:
		return "▼"
	case Equal:
		return "="
	}
	return "-"
}
