package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stride/internal/config"
	"stride/internal/handlers"
	"stride/internal/logger"
	"stride/internal/metrics"
	"stride/internal/middleware"
	"stride/internal/publisher"
	"stride/internal/state"
	"stride/internal/store"
	"stride/internal/worker"
)

// Server is the high-level coordinator wiring the job store, progress
// tracking, summary export, worker pool, and HTTP surface together.
type Server struct {
	cfg        *config.Config
	db         *sql.DB
	jobStore   *store.JobStore
	progress   state.ProgressStore
	producer   *publisher.Producer
	pool       *worker.Pool
	httpServer *http.Server
	jobChan    chan *worker.Request
	wg         sync.WaitGroup
}

// New constructs a Server with given config.
func New(cfg *config.Config) *Server {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Server{
		cfg:     cfg,
		jobChan: make(chan *worker.Request, queueSize),
	}
}

// Run starts background goroutines and blocks until context cancelled.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Msg("server starting")

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}

	if err := s.initProgress(ctx); err != nil {
		return fmt.Errorf("failed to initialize progress store: %w", err)
	}

	summaryPublisher := s.initPublisher()

	s.initWorkerPool(summaryPublisher)
	s.pool.Start()

	s.initHTTPServer()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

func (s *Server) initStore() error {
	log := logger.WithComponent("server")

	db, err := store.Open(s.cfg.DBPath)
	if err != nil {
		return err
	}
	s.db = db
	s.jobStore = store.NewJobStore(db)
	log.Info().Str("path", s.cfg.DBPath).Msg("job store initialized")
	return nil
}

func (s *Server) initProgress(ctx context.Context) error {
	log := logger.WithComponent("server")

	if s.cfg.RedisAddr == "" {
		log.Info().Msg("redis not configured, progress tracking disabled")
		s.progress = state.NewNoopStore()
		return nil
	}

	progress, err := state.NewRedisStore(ctx, s.cfg.RedisAddr)
	if err != nil {
		return err
	}
	s.progress = progress
	log.Info().Str("addr", s.cfg.RedisAddr).Msg("redis progress store initialized")
	return nil
}

// initPublisher returns the summary publisher; export is optional and a
// missing broker list just disables it.
func (s *Server) initPublisher() worker.Publisher {
	log := logger.WithComponent("server")

	if len(s.cfg.Kafka.Brokers) == 0 {
		log.Info().Msg("kafka not configured, summary export disabled")
		return worker.NoopPublisher{}
	}

	producer, err := publisher.NewProducer(s.cfg.Kafka.Brokers, s.cfg.Kafka.Topic, s.cfg.Kafka.Producer)
	if err != nil {
		log.Warn().Err(err).Msg("kafka producer unavailable, summary export disabled")
		return worker.NoopPublisher{}
	}

	s.producer = producer
	log.Info().
		Strs("brokers", s.cfg.Kafka.Brokers).
		Str("topic", s.cfg.Kafka.Topic).
		Msg("kafka producer initialized")
	return producer
}

func (s *Server) initWorkerPool(summaryPublisher worker.Publisher) {
	log := logger.WithComponent("server")

	node, _ := os.Hostname()
	if node == "" {
		node = "unknown"
	}

	s.pool = worker.NewPool(worker.Config{
		Publisher: summaryPublisher,
		Store:     s.jobStore,
		Progress:  s.progress,
		Jobs:      s.jobChan,
		Workers:   s.cfg.Workers,
		ResultDir: s.cfg.ResultDir,
		Node:      node,
	})
	log.Info().Int("workers", s.cfg.Workers).Msg("worker pool initialized")
}

func (s *Server) initHTTPServer() {
	mux := http.NewServeMux()

	jobsHandler := handlers.NewJobsHandler(handlers.JobsConfig{
		Store:       s.jobStore,
		Progress:    s.progress,
		Jobs:        s.jobChan,
		MaxBodySize: s.cfg.MaxUploadBytes,
	})

	chain := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.Recovery, middleware.Logging)
	}

	mux.Handle("POST /jobs", chain(jobsHandler.Submit))
	mux.Handle("GET /jobs/{id}", chain(jobsHandler.Report))
	mux.Handle("GET /jobs/{id}/download", chain(jobsHandler.Download))

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	metrics.JobQueueCapacity.Set(float64(cap(s.jobChan)))

	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// No more submissions after this point
	close(s.jobChan)

	done := make(chan struct{})
	go func() {
		s.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	if s.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := s.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	if err := s.progress.Close(); err != nil {
		log.Error().Err(err).Msg("progress store close error")
	}

	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	s.wg.Wait()

	log.Info().Msg("server stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poolStats := s.pool.Stats()

			metrics.JobQueueSize.Set(float64(len(s.jobChan)))

			event := log.Info().
				Uint64("jobs_completed", poolStats.Processed).
				Uint64("jobs_failed", poolStats.Failed).
				Int("queue_size", len(s.jobChan))
			if s.producer != nil {
				producerStats := s.producer.Stats()
				event = event.
					Uint64("summaries_sent", producerStats.Sent).
					Uint64("summaries_failed", producerStats.Failed)
			}
			event.Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.jobStore.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	if s.producer != nil {
		if err := s.producer.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	poolStats := s.pool.Stats()

	var sent, failed uint64
	if s.producer != nil {
		producerStats := s.producer.Stats()
		sent, failed = producerStats.Sent, producerStats.Failed
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"jobs": {
			"completed": %d,
			"failed": %d
		},
		"summaries": {
			"sent": %d,
			"failed": %d
		},
		"queue": {
			"buffered": %d,
			"capacity": %d
		}
	}`,
		poolStats.Processed,
		poolStats.Failed,
		sent,
		failed,
		len(s.jobChan),
		cap(s.jobChan),
	)
}
