package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records processed job IDs.
// Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// Contains returns true if the job ID has already been processed.
	Contains(ctx context.Context, jobID string) (bool, error)
	// Add marks a job ID as processed. It is called after successful processing.
	Add(ctx context.Context, jobID string) error
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore for single-instance
// deployments. Entries expire after the configured TTL.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
}

// NewMemoryIdempotencyStore creates a new in-memory idempotency store.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Contains checks if the job ID exists and is not expired.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	ts, exists := s.entries[jobID]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if time.Since(ts) > s.ttl {
		s.mu.Lock()
		delete(s.entries, jobID)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Add marks the job ID as processed.
func (s *MemoryIdempotencyStore) Add(_ context.Context, jobID string) error {
	s.mu.Lock()
	s.entries[jobID] = time.Now()
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisIdempotencyStore shares processed job IDs between consumer replicas.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store. Keys are
// "<prefix>:<job id>" and expire after ttl.
func NewRedisIdempotencyStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Contains reports whether the job ID key exists.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, jobID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add stores the job ID with the configured TTL.
func (s *RedisIdempotencyStore) Add(ctx context.Context, jobID string) error {
	return s.client.Set(ctx, s.key(jobID), 1, s.ttl).Err()
}

func (s *RedisIdempotencyStore) key(jobID string) string {
	return s.prefix + ":" + jobID
}

// IdempotentHandler wraps a Handler so jobs whose ID was already processed are
// skipped. A failing store lookup does not block processing.
func IdempotentHandler(store IdempotencyStore, group string, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, job *Job) error {
		if job.JobID == "" {
			return inner(ctx, job)
		}

		exists, err := store.Contains(ctx, job.JobID)
		if err != nil {
			logger.Warn("idempotency store lookup failed, processing anyway",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, job)
		}

		if exists {
			ConsumerJobsDuplicate.WithLabelValues(group).Inc()
			logger.Debug("skipping duplicate job",
				slog.String("job_id", job.JobID),
				slog.String("job_type", job.JobType),
			)
			return nil
		}

		if err := inner(ctx, job); err != nil {
			return err
		}

		if addErr := store.Add(ctx, job.JobID); addErr != nil {
			logger.Warn("failed to record job ID in idempotency store",
				slog.String("job_id", job.JobID),
				slog.String("error", addErr.Error()),
			)
		}
		return nil
	}
}
