// Package state tracks per-file progress within a running job. Progress
// is ephemeral; the job store remains the source of truth for final
// reports.
package state

import "context"

// File outcome markers stored per job
const (
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

// ProgressStore records per-file outcomes while a job runs.
type ProgressStore interface {
	SetFileStatus(ctx context.Context, jobID, file, status string) error
	// JobProgress returns how many files finished (done + failed) so far.
	JobProgress(ctx context.Context, jobID string) (done, failed int, err error)
	Close() error
}

type noopStore struct{}

// NewNoopStore returns a ProgressStore that records nothing, used when
// Redis is not configured.
func NewNoopStore() ProgressStore { return &noopStore{} }

func (n *noopStore) SetFileStatus(ctx context.Context, jobID, file, status string) error {
	return nil
}
func (n *noopStore) JobProgress(ctx context.Context, jobID string) (int, int, error) {
	return 0, 0, nil
}
func (n *noopStore) Close() error { return nil }
