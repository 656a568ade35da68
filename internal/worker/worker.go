package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"stride/internal/batch"
	"stride/internal/logger"
	"stride/internal/metrics"
	"stride/internal/models"
	"stride/internal/state"
)

// Publisher defines the interface for exporting file summaries
type Publisher interface {
	Publish(ctx context.Context, envelope *models.SummaryEnvelope) error
	PublishBatch(ctx context.Context, envelopes []*models.SummaryEnvelope) error
}

// JobStore is the subset of the job store the pool needs
type JobStore interface {
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, processed int, failures []models.FileError, resultPath string) error
	Fail(ctx context.Context, id string, message string) error
}

// Request is one submitted job together with its uploaded archive. The
// archive stays in memory only until the job finishes.
type Request struct {
	Job     *models.Job
	Archive []byte
}

// Pool manages workers that consume submitted jobs and run the batch
// driver on each.
type Pool struct {
	publisher Publisher
	store     JobStore
	progress  state.ProgressStore
	jobs      chan *Request
	workers   int
	resultDir string
	node      string

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher Publisher
	Store     JobStore
	Progress  state.ProgressStore
	Jobs      chan *Request
	Workers   int
	ResultDir string
	Node      string
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Progress == nil {
		cfg.Progress = state.NewNoopStore()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher: cfg.Publisher,
		store:     cfg.Store,
		progress:  cfg.Progress,
		jobs:      cfg.Jobs,
		workers:   cfg.Workers,
		resultDir: cfg.ResultDir,
		node:      cfg.Node,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing jobs
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Str("result_dir", p.resultDir).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops all workers
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// worker processes jobs from the channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		select {
		case <-p.ctx.Done():
			return
		case req, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(req)
		}
	}
}

// process runs one job end to end. A panic while processing fails that
// job and leaves the worker alive.
func (p *Pool) process(req *Request) {
	job := req.Job
	log := logger.WithJob(job.ID)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("job panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			p.failJob(job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	log.Info().
		Float64("lipa_max", job.LipaMax).
		Float64("mpa_max", job.MpaMax).
		Int("archive_bytes", len(req.Archive)).
		Msg("job started")

	if err := p.store.MarkRunning(p.ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("failed to mark job running")
	}

	result, err := batch.ProcessArchive(job.ID, req.Archive, batch.Options{
		LipaMax: job.LipaMax,
		MpaMax:  job.MpaMax,
		OnFile:  p.fileTracker(job.ID),
	})
	if err != nil {
		log.Error().Err(err).Msg("job failed")
		p.failJob(job.ID, err.Error())
		return
	}

	resultPath, err := p.writeResult(job.ID, result.Archive)
	if err != nil {
		log.Error().Err(err).Msg("failed to write result archive")
		p.failJob(job.ID, err.Error())
		return
	}

	if err := p.store.Complete(p.ctx, job.ID, result.Report.Processed, result.Report.Failures, resultPath); err != nil {
		log.Error().Err(err).Msg("failed to persist job report")
		p.failJob(job.ID, err.Error())
		return
	}

	duration := time.Since(start)
	p.processed.Add(1)
	metrics.JobsTotal.WithLabelValues("completed").Inc()
	metrics.JobDuration.Observe(duration.Seconds())

	log.Info().
		Int("processed", result.Report.Processed).
		Int("failed", len(result.Report.Failures)).
		Dur("duration", duration).
		Msg("job completed")

	p.publishSummaries(job.ID, result.Summaries)
}

// fileTracker reports per-file outcomes to the progress store.
func (p *Pool) fileTracker(jobID string) func(name string, err error) {
	return func(name string, err error) {
		status := state.StatusDone
		if err != nil {
			status = state.StatusFailed
		}
		if perr := p.progress.SetFileStatus(p.ctx, jobID, name, status); perr != nil {
			jlog := logger.WithJob(jobID)
			jlog.Warn().Err(perr).Str("file", name).Msg("progress update failed")
		}
	}
}

func (p *Pool) failJob(id, message string) {
	p.failed.Add(1)
	metrics.JobsTotal.WithLabelValues("failed").Inc()
	if err := p.store.Fail(p.ctx, id, message); err != nil {
		jlog := logger.WithJob(id)
		jlog.Error().Err(err).Msg("failed to mark job failed")
	}
}

func (p *Pool) writeResult(jobID string, data []byte) (string, error) {
	if err := os.MkdirAll(p.resultDir, 0o755); err != nil {
		return "", fmt.Errorf("creating result directory: %w", err)
	}
	path := filepath.Join(p.resultDir, jobID+".zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing result archive: %w", err)
	}
	return path, nil
}

// publishSummaries exports one envelope per processed file; on a batch
// failure each summary is retried individually.
func (p *Pool) publishSummaries(jobID string, summaries []*models.FileSummary) {
	if p.publisher == nil || len(summaries) == 0 {
		return
	}

	log := logger.WithJob(jobID)

	envelopes := make([]*models.SummaryEnvelope, 0, len(summaries))
	for _, summary := range summaries {
		envelopes = append(envelopes, models.NewSummaryEnvelope(summary, p.node))
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, envelopes)
	if err == nil {
		return
	}
	log.Warn().Err(err).Int("count", len(envelopes)).Msg("summary batch publish failed, retrying individually")

	for _, envelope := range envelopes {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("file", envelope.Summary.File).
				Msg("failed to publish summary")
		}
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64
	Failed    uint64
}

// NoopPublisher satisfies Publisher when summary export is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, envelope *models.SummaryEnvelope) error {
	return nil
}
func (NoopPublisher) PublishBatch(ctx context.Context, envelopes []*models.SummaryEnvelope) error {
	return nil
}
