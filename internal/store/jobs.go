package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stride/internal/models"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("job not found")

// JobStore handles database operations for batch jobs.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a job store over an open database.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new pending job.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, status, lipa_max, mpa_max, archive_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.LipaMax,
		job.MpaMax,
		job.ArchiveName,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT id, status, lipa_max, mpa_max, archive_name, files_processed,
		       files_failed, failures_json, result_path, error_message,
		       created_at, started_at, finished_at
		FROM jobs
		WHERE id = ?
	`

	job := &models.Job{}
	var failuresJSON string
	var started, finished sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Status,
		&job.LipaMax,
		&job.MpaMax,
		&job.ArchiveName,
		&job.FilesProcessed,
		&job.FilesFailed,
		&failuresJSON,
		&job.ResultPath,
		&job.ErrorMessage,
		&job.CreatedAt,
		&started,
		&finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}

	if failuresJSON != "" {
		if err := json.Unmarshal([]byte(failuresJSON), &job.Failures); err != nil {
			return nil, fmt.Errorf("decoding failures: %w", err)
		}
	}
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if finished.Valid {
		job.FinishedAt = &finished.Time
	}
	return job, nil
}

// MarkRunning transitions a job to running.
func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	query := `UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`
	return s.exec(ctx, query, models.JobRunning, time.Now().UTC(), id)
}

// Complete records a finished job with its report and result path.
func (s *JobStore) Complete(ctx context.Context, id string, processed int, failures []models.FileError, resultPath string) error {
	data, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encoding failures: %w", err)
	}
	if failures == nil {
		data = []byte("[]")
	}

	query := `
		UPDATE jobs
		SET status = ?, files_processed = ?, files_failed = ?, failures_json = ?,
		    result_path = ?, finished_at = ?
		WHERE id = ?
	`
	return s.exec(ctx, query,
		models.JobCompleted, processed, len(failures), string(data),
		resultPath, time.Now().UTC(), id)
}

// Fail records a job that could not be processed at all.
func (s *JobStore) Fail(ctx context.Context, id string, message string) error {
	query := `UPDATE jobs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`
	return s.exec(ctx, query, models.JobFailed, message, time.Now().UTC(), id)
}

// Recent lists the most recently created jobs.
func (s *JobStore) Recent(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, status, lipa_max, mpa_max, archive_name, files_processed,
		       files_failed, created_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job := &models.Job{}
		if err := rows.Scan(
			&job.ID,
			&job.Status,
			&job.LipaMax,
			&job.MpaMax,
			&job.ArchiveName,
			&job.FilesProcessed,
			&job.FilesFailed,
			&job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Ping checks database health.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *JobStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}
