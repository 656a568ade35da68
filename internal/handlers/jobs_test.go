package handlers_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stride/internal/handlers"
	"stride/internal/models"
	"stride/internal/store"
	"stride/internal/worker"
)

// mockStore is an in-memory JobStore
type mockStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[string]*models.Job)}
}

func (m *mockStore) Create(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

func (m *mockStore) Fail(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Status = models.JobFailed
		job.ErrorMessage = message
	}
	return nil
}

func newMux(h *handlers.JobsHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", h.Submit)
	mux.HandleFunc("GET /jobs/{id}", h.Report)
	mux.HandleFunc("GET /jobs/{id}/download", h.Download)
	return mux
}

func makeZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("p01.csv")
	if err != nil {
		t.Fatalf("creating member: %v", err)
	}
	w.Write([]byte("preamble;;;\nTime(approx);Duration (s);Event Type;Cumulative Step Count\n2024-01-15 08:00:00;10;2;0\n"))
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, archive []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if archive != nil {
		fw, err := mw.CreateFormFile("archive", "study.zip")
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		fw.Write(archive)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func submit(t *testing.T, mux *http.ServeMux, archive []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, archive, fields)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func thresholds(lipa, mpa string) map[string]string {
	return map[string]string{"lipa_max": lipa, "mpa_max": mpa}
}

func TestSubmitAccepted(t *testing.T) {
	jobs := make(chan *worker.Request, 4)
	ms := newMockStore()
	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: ms, Jobs: jobs})
	mux := newMux(h)

	rec := submit(t, mux, makeZip(t), thresholds("100", "130"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}

	var resp handlers.SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.JobID == "" || resp.Status != models.JobPending {
		t.Errorf("unexpected response: %+v", resp)
	}

	select {
	case req := <-jobs:
		if req.Job.ID != resp.JobID {
			t.Errorf("queued job %q, response said %q", req.Job.ID, resp.JobID)
		}
		if req.Job.LipaMax != 100 || req.Job.MpaMax != 130 {
			t.Errorf("thresholds = %v/%v", req.Job.LipaMax, req.Job.MpaMax)
		}
		if len(req.Archive) == 0 {
			t.Error("archive bytes not forwarded")
		}
	default:
		t.Fatal("job not enqueued")
	}

	if _, err := ms.Get(context.Background(), resp.JobID); err != nil {
		t.Errorf("job not persisted: %v", err)
	}
}

func TestSubmitThresholdValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"equal thresholds", thresholds("100", "100")},
		{"inverted thresholds", thresholds("130", "100")},
		{"negative lipa", thresholds("-1", "100")},
		{"missing lipa", map[string]string{"mpa_max": "130"}},
		{"missing mpa", map[string]string{"lipa_max": "100"}},
		{"non-numeric", thresholds("abc", "130")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := make(chan *worker.Request, 1)
			h := handlers.NewJobsHandler(handlers.JobsConfig{Store: newMockStore(), Jobs: jobs})
			rec := submit(t, newMux(h), makeZip(t), tt.fields)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(jobs) != 0 {
				t.Error("invalid submission must not enqueue a job")
			}
		})
	}
}

func TestSubmitRejectsNonZip(t *testing.T) {
	jobs := make(chan *worker.Request, 1)
	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: newMockStore(), Jobs: jobs})

	rec := submit(t, newMux(h), []byte("definitely not a zip"), thresholds("100", "130"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitMissingArchive(t *testing.T) {
	jobs := make(chan *worker.Request, 1)
	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: newMockStore(), Jobs: jobs})

	rec := submit(t, newMux(h), nil, thresholds("100", "130"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	jobs := make(chan *worker.Request) // unbuffered, nobody reading
	ms := newMockStore()
	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: ms, Jobs: jobs})

	rec := submit(t, newMux(h), makeZip(t), thresholds("100", "130"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReport(t *testing.T) {
	ms := newMockStore()
	now := time.Now().UTC()
	failures := make([]models.FileError, 14)
	for i := range failures {
		failures[i] = models.FileError{Name: "bad.csv", Error: "no usable rows after cleaning"}
	}
	ms.Create(context.Background(), &models.Job{
		ID:             "job-1",
		Status:         models.JobCompleted,
		LipaMax:        100,
		MpaMax:         130,
		FilesProcessed: 20,
		FilesFailed:    14,
		Failures:       failures,
		CreatedAt:      now,
	})

	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: ms, Jobs: make(chan *worker.Request, 1)})
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var report handlers.JobReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.FilesProcessed != 20 {
		t.Errorf("processed = %d, want 20", report.FilesProcessed)
	}
	// The failure list is capped; the true count is still reported.
	if len(report.Failures) != 10 {
		t.Errorf("reported failures = %d, want 10", len(report.Failures))
	}
	if report.TotalFailures != 14 {
		t.Errorf("total failures = %d, want 14", report.TotalFailures)
	}
}

func TestReportNotFound(t *testing.T) {
	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: newMockStore(), Jobs: make(chan *worker.Request, 1)})
	req := httptest.NewRequest(http.MethodGet, "/jobs/nope", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	resultPath := filepath.Join(t.TempDir(), "job-1.zip")
	archive := makeZip(t)
	if err := os.WriteFile(resultPath, archive, 0o644); err != nil {
		t.Fatalf("writing result fixture: %v", err)
	}

	ms := newMockStore()
	ms.Create(context.Background(), &models.Job{
		ID:         "job-1",
		Status:     models.JobCompleted,
		ResultPath: resultPath,
	})

	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: ms, Jobs: make(chan *worker.Request, 1)})
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1/download", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q, want application/zip", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), archive) {
		t.Error("downloaded archive differs from stored result")
	}
}

func TestDownloadNotReady(t *testing.T) {
	ms := newMockStore()
	ms.Create(context.Background(), &models.Job{ID: "job-1", Status: models.JobRunning})

	h := handlers.NewJobsHandler(handlers.JobsConfig{Store: ms, Jobs: make(chan *worker.Request, 1)})
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1/download", nil)
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
