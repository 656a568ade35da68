package classifier

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stride/internal/models"
)

// Input column labels as produced by the device export. The export
// spells the time column "Time(approx)".
const (
	colTime     = "Time(approx)"
	colDuration = "Duration (s)"
	colType     = "Event Type"
	colSteps    = "Cumulative Step Count"
)

// ReadEventTable parses a semicolon-delimited event log. The first line
// is a preamble and is always skipped; the second line is the header.
// Rows with an unparsable timestamp, duration, or event type, or with a
// non-positive duration, are dropped; a non-numeric step count becomes 0.
// The number of dropped rows is returned for accounting.
func ReadEventTable(r io.Reader) ([]models.EventRow, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	// Preamble line
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, models.ErrNoUsableRows
		}
		return nil, 0, fmt.Errorf("reading preamble: %w", err)
	}

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, models.ErrNoUsableRows
		}
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	required := [...]string{colTime, colDuration, colType, colSteps}
	var cols [len(required)]int
	for i, name := range required {
		idx, ok := index[name]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q", models.ErrMissingColumn, name)
		}
		cols[i] = idx
	}
	timeIdx, durIdx, typeIdx, stepsIdx := cols[0], cols[1], cols[2], cols[3]

	var rows []models.EventRow
	dropped := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line; drop it like any other unparsable row.
			dropped++
			continue
		}

		width := len(record)
		if timeIdx >= width || durIdx >= width || typeIdx >= width || stepsIdx >= width {
			dropped++
			continue
		}

		ts, err := models.ParseEventTime(record[timeIdx])
		if err != nil {
			dropped++
			continue
		}

		duration, err := strconv.ParseFloat(strings.TrimSpace(record[durIdx]), 64)
		if err != nil || duration <= 0 {
			dropped++
			continue
		}

		eventType, err := strconv.ParseFloat(strings.TrimSpace(record[typeIdx]), 64)
		if err != nil {
			dropped++
			continue
		}

		rows = append(rows, models.EventRow{
			Time:            ts,
			DurationSeconds: duration,
			EventType:       eventType,
			CumulativeSteps: parseSteps(record[stepsIdx]),
		})
	}

	return rows, dropped, nil
}

// parseSteps reads the running step counter; anything non-numeric counts
// as 0 rather than dropping the row.
func parseSteps(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// ClassifyTable reads one event log and classifies it in a single pass.
// It fails with models.ErrNoUsableRows when nothing survives cleaning.
func ClassifyTable(r io.Reader, lipaMax, mpaMax float64) ([]models.Interval, int, error) {
	rows, dropped, err := ReadEventTable(r)
	if err != nil {
		return nil, dropped, err
	}
	if len(rows) == 0 {
		return nil, dropped, models.ErrNoUsableRows
	}
	return Classify(rows, lipaMax, mpaMax), dropped, nil
}
