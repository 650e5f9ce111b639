package avr

import (
	"fmt"
	"math"
	"strings"
)

// Raw volume level bounds. One unit is 0.5 dB; MinLevel is -80 dB and
// MaxLevel is +12 dB.
const (
	MinLevel    = 0
	MaxLevel    = 185
	ZeroDBLevel = 161

	// UnknownDisplay is shown when muted or when the level is unknown.
	UnknownDisplay = "-.- dB"
)

// Direction of a relative volume change.
type Direction int

// Volume directions.
const (
	Up Direction = iota
	Down
)

// String returns "up" or "down".
func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ParseDirection accepts "u", "up", "d" and "down" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u", "up", "+":
		return Up, nil
	case "d", "down", "-":
		return Down, nil
	default:
		return Up, fmt.Errorf("avr: invalid volume direction %q", s)
	}
}

// Adjustment is a relative volume change request.
//
// With Ratio false and Amount zero the device's own single step is used.
// With Ratio true, Amount is a percentage of the current level.
// Otherwise Amount is in dB.
type Adjustment struct {
	Direction Direction
	Amount    float64
	Ratio     bool
}

// IsStep reports whether the adjustment maps to the native VU/VD command.
func (a Adjustment) IsStep() bool {
	return !a.Ratio && a.Amount == 0
}

// String renders the adjustment for logs and history, e.g. "up 3dB".
func (a Adjustment) String() string {
	switch {
	case a.IsStep():
		return a.Direction.String()
	case a.Ratio:
		return fmt.Sprintf("%s %g%%", a.Direction, a.Amount)
	default:
		return fmt.Sprintf("%s %gdB", a.Direction, a.Amount)
	}
}

// ComputeAdjustment returns the new raw level for a non-step adjustment.
// The result is always within [MinLevel, MaxLevel].
//
// Ratio deltas round half to even: 2.5 becomes 2, 3.5 becomes 4.
func ComputeAdjustment(current int, adj Adjustment) int {
	var delta float64
	if adj.Ratio {
		delta = math.RoundToEven(float64(current) * adj.Amount / 100)
	} else {
		delta = adj.Amount * 2
	}

	next := float64(current)
	if adj.Direction == Down {
		next -= delta
	} else {
		next += delta
	}

	if math.IsNaN(next) {
		return ClampLevel(current)
	}
	// dB amounts may be fractional; the device only accepts whole units.
	return int(math.Max(MinLevel, math.Min(MaxLevel, math.Round(next))))
}

// ClampLevel bounds a raw level to [MinLevel, MaxLevel].
func ClampLevel(level int) int {
	return max(MinLevel, min(MaxLevel, level))
}

// ToDisplay converts a raw level to "+5.5 dB", "0.0 dB" or "-20.0 dB".
// Level 0 is the unknown sentinel and, like muted, yields UnknownDisplay.
func ToDisplay(level int, muted bool) string {
	if muted || level == MinLevel {
		return UnknownDisplay
	}
	db := float64(level-ZeroDBLevel) / 2
	if db == 0 {
		return "0.0 dB"
	}
	return fmt.Sprintf("%+.1f dB", db)
}

// LevelToDB converts a raw level to decibels.
func LevelToDB(level int) float64 {
	return float64(level-ZeroDBLevel) / 2
}

// FormatLevel renders a level as the three-digit wire parameter.
func FormatLevel(level int) string {
	return fmt.Sprintf("%03d", ClampLevel(level))
}
