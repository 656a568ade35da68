package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Progress keys expire on their own; finished jobs are reported from the
// job store, not from here.
const progressTTL = 24 * time.Hour

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and returns a ProgressStore backed by it.
func NewRedisStore(ctx context.Context, addr string) (ProgressStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &redisStore{client: client}, nil
}

func (r *redisStore) SetFileStatus(ctx context.Context, jobID, file, status string) error {
	key := fmt.Sprintf("job:%s:file:%s", jobID, file)
	return r.client.Set(ctx, key, status, progressTTL).Err()
}

func (r *redisStore) JobProgress(ctx context.Context, jobID string) (done, failed int, err error) {
	pattern := fmt.Sprintf("job:%s:file:*", jobID)
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, 0, err
	}
	for _, k := range keys {
		val, err := r.client.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		switch val {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
	}
	return done, failed, nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
