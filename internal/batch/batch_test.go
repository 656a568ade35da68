package batch_test

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"stride/internal/batch"
	"stride/internal/models"
)

const goodTable = `Exported by StepTracker 3.2;;;;
Time(approx);Duration (s);Event Type;Cumulative Step Count
2024-01-15 08:00:00;10;2;0
2024-01-15 08:00:10;20;2;5
2024-01-15 08:00:30;5;0;5
`

const badTable = `preamble;;
Time(approx);Duration (s);Event Type
2024-01-15 08:00:00;10;2
`

func makeArchive(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating member %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	return buf.Bytes()
}

func memberNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("opening result archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestProcessArchive(t *testing.T) {
	data := makeArchive(t, map[string]string{
		"T1/ControlGroup/p01.csv":      goodTable,
		"T1/ExperimentalGroup/p02.CSV": goodTable,
		"T1/ControlGroup/broken.csv":   badTable,
		"T1/notes.txt":                 "ignore me",
	})

	result, err := batch.ProcessArchive("job-1", data, batch.Options{LipaMax: 100, MpaMax: 130})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Report.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Report.Processed)
	}
	if len(result.Report.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(result.Report.Failures))
	}
	if result.Report.Failures[0].Name != "broken.csv" {
		t.Errorf("failure name = %q, want broken.csv", result.Report.Failures[0].Name)
	}
	if !strings.Contains(result.Report.Failures[0].Error, "required column missing") {
		t.Errorf("unexpected failure message: %q", result.Report.Failures[0].Error)
	}

	names := memberNames(t, result.Archive)
	if len(names) != 2 {
		t.Fatalf("result members = %v, want 2 entries", names)
	}
	want := map[string]bool{
		"T1/ControlGroup/p01_processed.csv":      true,
		"T1/ExperimentalGroup/p02_processed.csv": true,
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected result member %q", name)
		}
	}
}

func TestProcessArchiveResultTables(t *testing.T) {
	data := makeArchive(t, map[string]string{"p01.csv": goodTable})

	result, err := batch.ProcessArchive("job-1", data, batch.Options{LipaMax: 100, MpaMax: 130})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(result.Archive), int64(len(result.Archive)))
	if err != nil {
		t.Fatalf("opening result archive: %v", err)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("opening result member: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading result member: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 intervals, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "15/01/2024 08:00:00,") {
		t.Errorf("unexpected first interval row: %q", lines[1])
	}
}

func TestProcessArchiveSummaries(t *testing.T) {
	data := makeArchive(t, map[string]string{"p01.csv": goodTable})

	result, err := batch.ProcessArchive("job-7", data, batch.Options{LipaMax: 100, MpaMax: 130})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(result.Summaries))
	}
	s := result.Summaries[0]
	if s.JobID != "job-7" || s.File != "p01.csv" {
		t.Errorf("unexpected summary identity: %+v", s)
	}
	if s.Rows != 3 || s.Intervals != 2 {
		t.Errorf("rows/intervals = %d/%d, want 3/2", s.Rows, s.Intervals)
	}
	if s.Steps != 5 {
		t.Errorf("steps = %d, want 5", s.Steps)
	}
	if s.DurationSeconds != 35 {
		t.Errorf("duration = %v, want 35", s.DurationSeconds)
	}
}

func TestProcessArchiveOnFile(t *testing.T) {
	data := makeArchive(t, map[string]string{
		"good.csv": goodTable,
		"bad.csv":  badTable,
	})

	outcomes := map[string]bool{}
	_, err := batch.ProcessArchive("job-1", data, batch.Options{
		LipaMax: 100,
		MpaMax:  130,
		OnFile:  func(name string, err error) { outcomes[name] = err == nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %v, want 2 entries", outcomes)
	}
	if !outcomes["good.csv"] || outcomes["bad.csv"] {
		t.Errorf("unexpected outcomes: %v", outcomes)
	}
}

func TestProcessArchiveUnreadable(t *testing.T) {
	if _, err := batch.ProcessArchive("job-1", []byte("not a zip"), batch.Options{LipaMax: 100, MpaMax: 130}); err == nil {
		t.Fatal("expected error for unreadable archive")
	}
}

func TestProcessArchiveEmpty(t *testing.T) {
	data := makeArchive(t, map[string]string{"readme.txt": "no csv here"})

	result, err := batch.ProcessArchive("job-1", data, batch.Options{LipaMax: 100, MpaMax: 130})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Report.Processed != 0 || len(result.Report.Failures) != 0 {
		t.Errorf("expected empty report, got %+v", result.Report)
	}
}

func TestReportCappedFailures(t *testing.T) {
	var report batch.Report
	for i := 0; i < batch.MaxReportedFailures+5; i++ {
		report.Failures = append(report.Failures, models.FileError{Name: "f", Error: "e"})
	}
	if got := len(report.CappedFailures()); got != batch.MaxReportedFailures {
		t.Errorf("capped failures = %d, want %d", got, batch.MaxReportedFailures)
	}

	report.Failures = report.Failures[:3]
	if got := len(report.CappedFailures()); got != 3 {
		t.Errorf("capped failures = %d, want 3", got)
	}
}
