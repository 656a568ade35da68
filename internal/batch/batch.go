// Package batch drives the classifier over an archive of event-log files:
// one ZIP in, one ZIP of result tables out, with per-file failures
// collected instead of aborting the run.
package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"

	"stride/internal/classifier"
	"stride/internal/logger"
	"stride/internal/metrics"
	"stride/internal/models"
)

// MaxReportedFailures caps the failure list surfaced to users.
const MaxReportedFailures = 10

// Options configures one archive run.
type Options struct {
	LipaMax float64
	MpaMax  float64

	// OnFile, if set, is called after each file with its outcome.
	OnFile func(name string, err error)
}

// Report summarizes one archive run.
type Report struct {
	Processed int
	Failures  []models.FileError
}

// CappedFailures returns at most MaxReportedFailures entries.
func (r Report) CappedFailures() []models.FileError {
	if len(r.Failures) > MaxReportedFailures {
		return r.Failures[:MaxReportedFailures]
	}
	return r.Failures
}

// Result is the full outcome of one archive run.
type Result struct {
	// Output ZIP containing one result table per processed file
	Archive []byte

	Report Report

	// Per-file summaries for downstream export, successes only
	Summaries []*models.FileSummary
}

// ProcessArchive classifies every CSV member of the input archive. A file
// that fails to classify is recorded against its name and never stops the
// rest of the batch; only an unreadable archive is a hard error.
func ProcessArchive(jobID string, data []byte, opts Options) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	log := logger.WithJob(jobID)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	result := &Result{}
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if !strings.EqualFold(path.Ext(member.Name), ".csv") {
			continue
		}

		summary, err := processMember(zw, jobID, member, opts)
		if opts.OnFile != nil {
			opts.OnFile(member.Name, err)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("file", member.Name).
				Msg("file failed classification")
			result.Report.Failures = append(result.Report.Failures, models.FileError{
				Name:  path.Base(member.Name),
				Error: err.Error(),
			})
			metrics.FilesTotal.WithLabelValues("failed").Inc()
			continue
		}

		result.Report.Processed++
		result.Summaries = append(result.Summaries, summary)
		metrics.FilesTotal.WithLabelValues("processed").Inc()
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing result archive: %w", err)
	}
	result.Archive = buf.Bytes()

	log.Info().
		Int("processed", result.Report.Processed).
		Int("failed", len(result.Report.Failures)).
		Msg("archive processed")

	return result, nil
}

// processMember classifies one archive member and writes its result table
// next to the original's relative path, named <base>_processed.csv.
func processMember(zw *zip.Writer, jobID string, member *zip.File, opts Options) (*models.FileSummary, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("opening member: %w", err)
	}
	defer rc.Close()

	rows, dropped, err := classifier.ReadEventTable(rc)
	if err != nil {
		return nil, err
	}
	metrics.RowsDroppedTotal.Add(float64(dropped))
	if len(rows) == 0 {
		return nil, models.ErrNoUsableRows
	}

	intervals := classifier.Classify(rows, opts.LipaMax, opts.MpaMax)
	metrics.IntervalsTotal.Add(float64(len(intervals)))

	out, err := zw.Create(resultName(member.Name))
	if err != nil {
		return nil, fmt.Errorf("creating result member: %w", err)
	}
	if err := classifier.WriteIntervalTable(out, intervals); err != nil {
		return nil, fmt.Errorf("writing result table: %w", err)
	}

	summary := &models.FileSummary{
		JobID:       jobID,
		File:        member.Name,
		Rows:        len(rows),
		DroppedRows: dropped,
		Intervals:   len(intervals),
	}
	for _, iv := range intervals {
		summary.Steps += iv.Steps
		summary.DurationSeconds += iv.DurationSeconds
	}
	return summary, nil
}

// resultName maps "T1/ControlGroup/p01.csv" to
// "T1/ControlGroup/p01_processed.csv".
func resultName(name string) string {
	dir, base := path.Split(name)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return dir + stem + "_processed.csv"
}
