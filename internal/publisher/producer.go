// Package publisher exports per-file classification summaries to Kafka
// so downstream study tooling can track batches without polling the API.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"stride/internal/config"
	"stride/internal/logger"
	"stride/internal/metrics"
	"stride/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize summary")
)

// Producer publishes summary envelopes with a pooled set of writers.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []*kafka.Writer
	pool    chan *kafka.Writer
	closed  atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewProducer creates a Kafka producer for the summary topic.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}

	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: make([]*kafka.Writer, cfg.PoolSize),
		pool:    make(chan *kafka.Writer, cfg.PoolSize),
	}

	compression := getCompression(cfg.Compression)
	for i := 0; i < cfg.PoolSize; i++ {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // partition by job ID
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			MaxAttempts:  cfg.MaxRetries + 1,
			Async:        false,
		}
		p.writers[i] = writer
		p.pool <- writer
	}

	return p, nil
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Publish sends one summary envelope.
func (p *Producer) Publish(ctx context.Context, envelope *models.SummaryEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg, err := toMessage(envelope)
	if err != nil {
		p.failed.Add(1)
		return err
	}

	writer, err := p.acquire(ctx)
	if err != nil {
		p.failed.Add(1)
		return err
	}
	defer func() { p.pool <- writer }()

	if err := p.writeWithRetry(ctx, writer, []kafka.Message{msg}); err != nil {
		p.failed.Add(1)
		metrics.SummaryPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.sent.Add(1)
	metrics.SummaryPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// PublishBatch sends all summaries of one job in a single write.
func (p *Producer) PublishBatch(ctx context.Context, envelopes []*models.SummaryEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(envelopes) == 0 {
		return nil
	}

	log := logger.WithComponent("publisher")
	start := time.Now()

	messages := make([]kafka.Message, 0, len(envelopes))
	for _, envelope := range envelopes {
		msg, err := toMessage(envelope)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", envelope.Summary.JobID).
				Str("file", envelope.Summary.File).
				Msg("failed to serialize summary")
			p.failed.Add(1)
			metrics.SummaryPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}

	writer, err := p.acquire(ctx)
	if err != nil {
		p.failed.Add(uint64(len(messages)))
		return err
	}
	defer func() { p.pool <- writer }()

	err = p.writeWithRetry(ctx, writer, messages)
	metrics.SummaryPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Msg("failed to publish summary batch")
		p.failed.Add(uint64(len(messages)))
		metrics.SummaryPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	log.Debug().
		Int("batch_size", len(messages)).
		Msg("summary batch published")
	p.sent.Add(uint64(len(messages)))
	metrics.SummaryPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	return nil
}

func toMessage(envelope *models.SummaryEnvelope) (kafka.Message, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return kafka.Message{
		Key:   []byte(envelope.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(envelope.Summary.JobID)},
			{Key: "file", Value: []byte(envelope.Summary.File)},
			{Key: "node", Value: []byte(envelope.Node)},
		},
		Time: envelope.ProcessedAt,
	}, nil
}

func (p *Producer) acquire(ctx context.Context) (*kafka.Writer, error) {
	select {
	case writer := <-p.pool:
		return writer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeWithRetry writes messages with exponential backoff.
func (p *Producer) writeWithRetry(ctx context.Context, writer *kafka.Writer, messages []kafka.Message) error {
	log := logger.WithComponent("publisher")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")
			metrics.SummaryPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing writers: %v", errs)
	}
	return nil
}

// Stats returns producer statistics.
func (p *Producer) Stats() Stats {
	return Stats{
		Sent:   p.sent.Load(),
		Failed: p.failed.Load(),
	}
}

// Stats holds producer counters.
type Stats struct {
	Sent   uint64
	Failed uint64
}

// HealthCheck verifies the producer is usable.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	writer, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { p.pool <- writer }()
	_ = writer.Stats()
	return nil
}
