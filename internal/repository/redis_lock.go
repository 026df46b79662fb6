package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobLockKeyPrefix = "billing:job_lock:"

// RedisJobLocker implements the scheduler's overlap guard with a Redis
// SETNX lease. The TTL covers a crashed holder: the lease simply expires
// and the next run proceeds.
type RedisJobLocker struct {
	client *redis.Client
}

// NewRedisJobLocker creates a new job locker
func NewRedisJobLocker(client *redis.Client) *RedisJobLocker {
	return &RedisJobLocker{
		client: client,
	}
}

// Acquire takes the lease for a job. Returns false when another run holds it.
func (l *RedisJobLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, jobLockKeyPrefix+job, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	return ok, nil
}

// Release frees the lease after a completed run.
func (l *RedisJobLocker) Release(ctx context.Context, job string) error {
	if err := l.client.Del(ctx, jobLockKeyPrefix+job).Err(); err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}
