// Package classifier turns cleaned wearable event rows into summarized
// behaviour intervals. The classification itself is a pure, synchronous
// computation; safe to call concurrently on independent inputs.
package classifier

import (
	"math"

	"stride/internal/models"
)

// Classify groups consecutive same-type rows into intervals and labels
// each one. Rows must already be cleaned (see ReadEventTable) and in
// original file order; no re-sort is performed.
func Classify(rows []models.EventRow, lipaMax, mpaMax float64) []models.Interval {
	if len(rows) == 0 {
		return nil
	}

	// Per-row step deltas over the cleaned, ungrouped sequence. The first
	// row has no predecessor and contributes 0; counter resets (negative
	// diffs) clamp to 0.
	deltas := make([]int64, len(rows))
	for i := 1; i < len(rows); i++ {
		if d := rows[i].CumulativeSteps - rows[i-1].CumulativeSteps; d > 0 {
			deltas[i] = d
		}
	}

	// Change-point grouping: a run ends whenever the event type differs
	// from the previous row's.
	var intervals []models.Interval
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].EventType != rows[i-1].EventType {
			intervals = append(intervals, reduceRun(rows[start:i], deltas[start:i], lipaMax, mpaMax))
			start = i
		}
	}
	return intervals
}

// reduceRun collapses one maximal run into a single interval record.
func reduceRun(run []models.EventRow, deltas []int64, lipaMax, mpaMax float64) models.Interval {
	var duration float64
	var steps int64
	for i, row := range run {
		duration += row.DurationSeconds
		steps += deltas[i]
	}

	doubled := steps * 2
	minutes := round3(duration / 60)

	var spm float64
	if minutes != 0 {
		spm = float64(doubled) / minutes
		if math.IsInf(spm, 0) || math.IsNaN(spm) {
			spm = 0
		}
	}
	spm = round2(spm)

	eventType := run[0].EventType
	return models.Interval{
		Start:               run[0].Time,
		DurationSeconds:     duration,
		EventType:           eventType,
		LastCumulativeSteps: run[len(run)-1].CumulativeSteps,
		Steps:               steps,
		DoubledSteps:        doubled,
		Minutes:             minutes,
		StepsPerMinute:      spm,
		Behaviour:           models.BehaviourFor(eventType, spm, lipaMax, mpaMax),
		ActivityCategory:    models.ActivityCategoryFor(eventType, spm, lipaMax, mpaMax),
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
