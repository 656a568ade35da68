package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"stride/internal/batch"
	"stride/internal/metrics"
	"stride/internal/models"
	"stride/internal/state"
	"stride/internal/store"
	"stride/internal/worker"
)

// JobStore is the subset of the job store the handlers need
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Fail(ctx context.Context, id string, message string) error
}

// JobsHandler serves job submission, reports, and result downloads
type JobsHandler struct {
	store    JobStore
	progress state.ProgressStore
	jobs     chan<- *worker.Request
	maxBody  int64
}

// JobsConfig holds configuration for the jobs handler
type JobsConfig struct {
	Store       JobStore
	Progress    state.ProgressStore
	Jobs        chan<- *worker.Request
	MaxBodySize int64
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(cfg JobsConfig) *JobsHandler {
	maxBody := cfg.MaxBodySize
	if maxBody == 0 {
		maxBody = 100 * 1024 * 1024
	}
	progress := cfg.Progress
	if progress == nil {
		progress = state.NewNoopStore()
	}
	return &JobsHandler{
		store:    cfg.Store,
		progress: progress,
		jobs:     cfg.Jobs,
		maxBody:  maxBody,
	}
}

// SubmitResponse is returned when a job is accepted
type SubmitResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// ProgressInfo reports live per-file progress of a running job
type ProgressInfo struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

// JobReport is the per-job report returned to clients
type JobReport struct {
	JobID          string             `json:"job_id"`
	Status         models.JobStatus   `json:"status"`
	ArchiveName    string             `json:"archive_name,omitempty"`
	LipaMax        float64            `json:"lipa_max"`
	MpaMax         float64            `json:"mpa_max"`
	FilesProcessed int                `json:"files_processed"`
	FilesFailed    int                `json:"files_failed"`
	Failures       []models.FileError `json:"failures,omitempty"`
	TotalFailures  int                `json:"total_failures"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	Progress       *ProgressInfo      `json:"progress,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
}

// Submit handles POST /jobs: a multipart upload with an `archive` ZIP and
// the two step-rate thresholds. Thresholds are validated before any file
// is touched.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}

	lipaMax, err := parseThreshold(r, "lipa_max")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mpaMax, err := parseThreshold(r, "mpa_max")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateThresholds(lipaMax, mpaMax); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing archive upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		h.writeError(w, http.StatusBadRequest, "upload is not a valid zip archive")
		return
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Status:      models.JobPending,
		LipaMax:     lipaMax,
		MpaMax:      mpaMax,
		ArchiveName: header.Filename,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.Create(r.Context(), job); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// Non-blocking enqueue; a full queue rejects the job rather than
	// stalling the upload.
	select {
	case h.jobs <- &worker.Request{Job: job, Archive: data}:
	default:
		metrics.JobsTotal.WithLabelValues("rejected").Inc()
		_ = h.store.Fail(r.Context(), job.ID, "job queue full")
		h.writeError(w, http.StatusServiceUnavailable, "job queue full, try again later")
		return
	}

	h.writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// Report handles GET /jobs/{id}
func (h *JobsHandler) Report(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	report := JobReport{
		JobID:          job.ID,
		Status:         job.Status,
		ArchiveName:    job.ArchiveName,
		LipaMax:        job.LipaMax,
		MpaMax:         job.MpaMax,
		FilesProcessed: job.FilesProcessed,
		FilesFailed:    job.FilesFailed,
		TotalFailures:  len(job.Failures),
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		FinishedAt:     job.FinishedAt,
	}

	if len(job.Failures) > batch.MaxReportedFailures {
		report.Failures = job.Failures[:batch.MaxReportedFailures]
	} else {
		report.Failures = job.Failures
	}

	if job.Status == models.JobRunning {
		done, failed, err := h.progress.JobProgress(r.Context(), job.ID)
		if err == nil {
			report.Progress = &ProgressInfo{Done: done, Failed: failed}
		}
	}

	h.writeJSON(w, http.StatusOK, report)
}

// Download handles GET /jobs/{id}/download
func (h *JobsHandler) Download(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if job.Status != models.JobCompleted {
		h.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not completed", job.Status))
		return
	}

	f, err := os.Open(job.ResultPath)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "result archive unavailable")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "processed_"+job.ID+".zip"))
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	io.Copy(w, f)
}

func (h *JobsHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing job id")
		return nil, false
	}

	job, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrJobNotFound) {
		h.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	return job, true
}

func parseThreshold(r *http.Request, name string) (float64, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func (h *JobsHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *JobsHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
