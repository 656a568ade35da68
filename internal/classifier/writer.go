package classifier

import (
	"encoding/csv"
	"io"
	"strconv"

	"stride/internal/models"
)

// Output timestamp layout: DD/MM/YYYY HH:MM:SS
const outputTimeFormat = "02/01/2006 15:04:05"

// OutputHeader is the result table column order, fixed by the downstream
// analysis tooling.
var OutputHeader = []string{
	"Time",
	"Unix Timestamp",
	"Event Duration (s)",
	"Behaviour",
	"Steps",
	"Doubled Steps",
	"Minutes",
	"Steps per Minute",
	"Activity Category",
}

// WriteIntervalTable serializes classified intervals as CSV, one row per
// interval, in input order.
func WriteIntervalTable(w io.Writer, intervals []models.Interval) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(OutputHeader); err != nil {
		return err
	}

	for _, iv := range intervals {
		record := []string{
			iv.Start.Format(outputTimeFormat),
			strconv.FormatInt(iv.Start.Unix(), 10),
			formatNumber(iv.DurationSeconds),
			string(iv.Behaviour),
			strconv.FormatInt(iv.Steps, 10),
			strconv.FormatInt(iv.DoubledSteps, 10),
			formatNumber(iv.Minutes),
			formatNumber(iv.StepsPerMinute),
			string(iv.ActivityCategory),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatNumber renders a float without trailing zeros ("30", "0.5").
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
