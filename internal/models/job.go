package models

import "time"

// JobStatus tracks a batch job through its lifecycle
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// FileError records one file that failed classification
type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Job is one submitted archive processing run
type Job struct {
	// Unique job identifier (UUID)
	ID string `json:"id"`

	Status JobStatus `json:"status"`

	// Step-rate thresholds the batch was submitted with
	LipaMax float64 `json:"lipa_max"`
	MpaMax  float64 `json:"mpa_max"`

	// Original upload name, for reporting
	ArchiveName string `json:"archive_name"`

	// Counts filled in on completion
	FilesProcessed int `json:"files_processed"`
	FilesFailed    int `json:"files_failed"`

	// Per-file failures, capped for reporting by the handler
	Failures []FileError `json:"failures,omitempty"`

	// Path of the result archive on disk, once completed
	ResultPath string `json:"-"`

	// Fatal error message when Status is failed
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
