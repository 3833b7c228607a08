package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncJob asks a background runner to sync one provider.
type SyncJob struct {
	ProviderID string    `json:"provider_id"`
	Mode       string    `json:"mode"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SyncQueue is the list key of the sync job queue.
const SyncQueue = "jobs:sync"

// Enqueue pushes a job onto the left of a Redis list.
func Enqueue(ctx context.Context, r *Redis, queue string, job SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return r.client.LPush(ctx, r.Key(queue), data).Err()
}

// Dequeue blocks until a job is available on the right of the list or
// timeout elapses. A timeout or a cancelled ctx yields (nil, nil) so the
// caller can loop and check for shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*SyncJob, error) {
	result, err := r.client.BRPop(ctx, timeout, r.Key(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// [key, value]
	if len(result) < 2 {
		return nil, nil
	}
	var job SyncJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}

// RedisQueue adapts the list helpers to a job queue value.
type RedisQueue struct {
	r       *Redis
	timeout time.Duration
}

// NewRedisQueue returns a queue that polls with the given BRPOP timeout.
func NewRedisQueue(r *Redis, timeout time.Duration) *RedisQueue {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisQueue{r: r, timeout: timeout}
}

func (q *RedisQueue) Push(ctx context.Context, job SyncJob) error {
	return Enqueue(ctx, q.r, SyncQueue, job)
}

// Pop returns the next job, or nil when the poll timed out.
func (q *RedisQueue) Pop(ctx context.Context) (*SyncJob, error) {
	return Dequeue(ctx, q.r, SyncQueue, q.timeout)
}
