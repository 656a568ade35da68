package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the service.
type Config struct {
	// HTTP listen address
	HTTPAddr string

	// Zerolog level name
	LogLevel string

	// SQLite database path for the job store
	DBPath string

	// Directory where result archives are written
	ResultDir string

	// Redis address for progress tracking; empty disables it
	RedisAddr string

	// Upload size cap in bytes
	MaxUploadBytes int64

	// Job queue capacity
	QueueSize int

	// Number of job workers
	Workers int

	Kafka KafkaConfig
}

// KafkaConfig configures the summary export topic.
type KafkaConfig struct {
	// Broker addresses; empty disables summary export
	Brokers []string
	Topic   string

	Producer ProducerConfig
}

// ProducerConfig tunes the Kafka producer.
type ProducerConfig struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	MaxRetries   int
	RetryBackoff time.Duration
	Compression  string
}

// Load reads configuration from the environment with local-dev defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DBPath:         getEnv("DB_PATH", "./data/stride.db"),
		ResultDir:      getEnv("RESULT_DIR", "./data/results"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
		QueueSize:      getEnvInt("QUEUE_SIZE", 64),
		Workers:        getEnvInt("WORKERS", 2),
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "stride.file-summaries"),
			Producer: ProducerConfig{
				PoolSize:     getEnvInt("KAFKA_POOL_SIZE", 2),
				BatchSize:    getEnvInt("KAFKA_BATCH_SIZE", 100),
				BatchTimeout: getEnvDuration("KAFKA_BATCH_TIMEOUT", 100*time.Millisecond),
				WriteTimeout: getEnvDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
				RequiredAcks: getEnvInt("KAFKA_REQUIRED_ACKS", -1),
				MaxRetries:   getEnvInt("KAFKA_MAX_RETRIES", 3),
				RetryBackoff: getEnvDuration("KAFKA_RETRY_BACKOFF", 100*time.Millisecond),
				Compression:  getEnv("KAFKA_COMPRESSION", "snappy"),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
