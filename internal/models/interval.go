package models

import "time"

// Interval is a maximal run of consecutive cleaned rows sharing one event
// type, reduced to a single summary record. Intervals are never mutated
// after creation.
type Interval struct {
	// Timestamp of the run's first row
	Start time.Time

	// Sum of row durations over the run, seconds
	DurationSeconds float64

	// Event type code shared by every row in the run
	EventType float64

	// Cumulative step count of the run's last row
	LastCumulativeSteps int64

	// Sum of clamped per-row step deltas within the run
	Steps int64

	// Steps * 2 (the device counts one leg only)
	DoubledSteps int64

	// DurationSeconds / 60, rounded to 3 decimal places
	Minutes float64

	// DoubledSteps / Minutes, finite and >= 0, rounded to 2 decimal places
	StepsPerMinute float64

	Behaviour        Behaviour
	ActivityCategory ActivityCategory
}
