// Package timestep maps calendar timestamps to the integer hour steps used
// throughout the stored transaction corpus.
//
// The predictor emits transactions stamped with a "step" rather than a wall
// clock: one step is one hour, anchored so that a configured reference
// instant corresponds to a configured maximum step. Every conversion in this
// package derives from the single formula
//
//	step = maxStep + floor((t - baseTime) / 1h)
//
// so the forward and range conversions can never disagree on sign.
package timestep

import (
	"fmt"
	"math"
	"time"
)

// Layout is the timestamp format accepted from structured intent queries.
const Layout = "2006-01-02 15:04:05"

// Default anchor: step 744 corresponds to 2025-10-16 19:00:00 UTC.
var DefaultBaseTime = time.Date(2025, time.October, 16, 19, 0, 0, 0, time.UTC)

// DefaultMaxStep is the step assigned to the default anchor instant.
const DefaultMaxStep = 744

// Index converts between calendar timestamps and integer hour steps.
type Index struct {
	BaseTime time.Time
	MaxStep  int
}

// NewIndex returns an index anchored at the corpus default reference point.
func NewIndex() Index {
	return Index{BaseTime: DefaultBaseTime, MaxStep: DefaultMaxStep}
}

// StepOf converts a parsed timestamp to its step. Steps are unbounded in
// both directions; a step outside any stored shard simply matches nothing.
func (i Index) StepOf(t time.Time) int {
	return i.MaxStep + int(math.Floor(t.Sub(i.BaseTime).Hours()))
}

// DateToStep parses a "YYYY-MM-DD HH:MM:SS" timestamp and converts it to a
// step. The error names the expected layout so callers can surface it
// verbatim to the intent layer.
func (i Index) DateToStep(s string) (int, error) {
	t, err := parseTimestamp(s)
	if err != nil {
		return 0, err
	}
	return i.StepOf(t), nil
}

// DateToStepRange converts both endpoints with the same formula. It does not
// order the result; callers filtering an inclusive window should pass the
// pair through StepWindow first.
func (i Index) DateToStepRange(start, end string) (int, int, error) {
	startStep, err := i.DateToStep(start)
	if err != nil {
		return 0, 0, err
	}
	endStep, err := i.DateToStep(end)
	if err != nil {
		return 0, 0, err
	}
	return startStep, endStep, nil
}

// StepToDate returns the instant at which the given step begins.
func (i Index) StepToDate(step int) time.Time {
	return i.BaseTime.Add(time.Duration(step-i.MaxStep) * time.Hour)
}

// DayOf returns the calendar date (UTC midnight) containing the given step,
// which is the identity a day shard is filed under.
func (i Index) DayOf(step int) time.Time {
	t := i.StepToDate(step)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StepWindow orders a step pair into an inclusive (lo, hi) window.
func StepWindow(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected format %q: %w", s, Layout, err)
	}
	return t, nil
}
