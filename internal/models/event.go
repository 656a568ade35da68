package models

import (
	"errors"
	"strings"
	"time"
)

// Event type codes as they appear in the device export.
const (
	EventSedentary float64 = 0
	EventStanding  float64 = 1
	EventStepping  float64 = 2
)

// Behaviour is the classification label covering all event types
type Behaviour string

const (
	BehaviourSedentary Behaviour = "SED"
	BehaviourStanding  Behaviour = "STAND"
	BehaviourLight     Behaviour = "LIPA"
	BehaviourModerate  Behaviour = "MPA"
	BehaviourVigorous  Behaviour = "VPA"
	BehaviourUnknown   Behaviour = "UNKNOWN"
)

// ActivityCategory is the parallel intensity label applied only to
// stepping intervals; all other event types carry the empty category.
type ActivityCategory string

const (
	CategoryLow      ActivityCategory = "LPA"
	CategoryModerate ActivityCategory = "MIVA"
	CategoryHigh     ActivityCategory = "HPA"
	CategoryNone     ActivityCategory = ""
)

// EventRow is one cleaned sensor-log record
type EventRow struct {
	// Time the event started, UTC
	Time time.Time

	// Event duration in seconds, always > 0 after cleaning
	DurationSeconds float64

	// Numeric event type code (0 sedentary, 1 standing, 2 stepping)
	EventType float64

	// Running step counter as exported by the device
	CumulativeSteps int64
}

// Validation and classification errors
var (
	ErrMissingColumn     = errors.New("required column missing")
	ErrNoUsableRows      = errors.New("no usable rows after cleaning")
	ErrInvalidTimestamp  = errors.New("invalid timestamp format")
	ErrInvalidThresholds = errors.New("mpa threshold must be greater than lipa threshold")
)

// IsMalformedInput reports whether err means the input table itself is
// unusable (missing column or nothing survived cleaning).
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMissingColumn) || errors.Is(err, ErrNoUsableRows)
}

// ValidateThresholds checks the two step-rate thresholds before any file
// is processed: lipaMax must be non-negative and mpaMax strictly above it.
func ValidateThresholds(lipaMax, mpaMax float64) error {
	if lipaMax < 0 || mpaMax <= lipaMax {
		return ErrInvalidThresholds
	}
	return nil
}

// BehaviourFor labels one interval. Thresholds are passed explicitly so
// the function stays free of captured state.
func BehaviourFor(eventType, stepsPerMinute, lipaMax, mpaMax float64) Behaviour {
	switch eventType {
	case EventSedentary:
		return BehaviourSedentary
	case EventStanding:
		return BehaviourStanding
	case EventStepping:
		switch {
		case stepsPerMinute < lipaMax:
			return BehaviourLight
		case stepsPerMinute <= mpaMax:
			return BehaviourModerate
		default:
			return BehaviourVigorous
		}
	}
	return BehaviourUnknown
}

// ActivityCategoryFor labels stepping intervals with the LPA/MIVA/HPA
// vocabulary. The boundary test intentionally mirrors BehaviourFor.
func ActivityCategoryFor(eventType, stepsPerMinute, lipaMax, mpaMax float64) ActivityCategory {
	if eventType != EventStepping {
		return CategoryNone
	}
	switch {
	case stepsPerMinute < lipaMax:
		return CategoryLow
	case stepsPerMinute <= mpaMax:
		return CategoryModerate
	default:
		return CategoryHigh
	}
}

// SupportedTimeFormats lists the timestamp layouts we attempt to parse,
// most common export formats first.
var SupportedTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006 15:04:05",
	"2/1/2006 15:04",
	"02-Jan-06 15:04:05",
	"2006/01/02 15:04:05",
}

// ParseEventTime attempts to parse a timestamp string from the export.
// Times carry no zone information and are treated as UTC.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range SupportedTimeFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}
