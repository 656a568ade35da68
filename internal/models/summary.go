package models

import "time"

// FileSummary is the per-file classification summary exported downstream
// after a file is successfully processed.
type FileSummary struct {
	JobID string `json:"job_id"`

	// File name relative to the archive root
	File string `json:"file"`

	// Rows that survived cleaning
	Rows int `json:"rows"`

	// Rows dropped during cleaning
	DroppedRows int `json:"dropped_rows"`

	// Number of output intervals
	Intervals int `json:"intervals"`

	// Total step delta across all intervals
	Steps int64 `json:"steps"`

	// Total event duration across all intervals, seconds
	DurationSeconds float64 `json:"duration_seconds"`
}

// SummaryEnvelope wraps a FileSummary with processing metadata.
type SummaryEnvelope struct {
	Summary *FileSummary `json:"summary"`

	ProcessedAt time.Time `json:"processed_at"`
	Node        string    `json:"node"`

	// Kafka partition key; summaries of one job stay ordered together
	PartitionKey string `json:"partition_key"`
}

// NewSummaryEnvelope wraps a summary, partitioning by job so consumers see
// one job's files in order.
func NewSummaryEnvelope(summary *FileSummary, node string) *SummaryEnvelope {
	return &SummaryEnvelope{
		Summary:      summary,
		ProcessedAt:  time.Now().UTC(),
		Node:         node,
		PartitionKey: summary.JobID,
	}
}
