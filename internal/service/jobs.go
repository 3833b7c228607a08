package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/cache"
)

// Queue holds pending sync jobs. *cache.RedisQueue and *MemoryQueue
// implement it. Pop returns (nil, nil) when nothing arrived in time.
type Queue interface {
	Push(ctx context.Context, job cache.SyncJob) error
	Pop(ctx context.Context) (*cache.SyncJob, error)
}

// ErrQueueFull is returned by MemoryQueue.Push when the buffer is full.
var ErrQueueFull = errors.New("sync queue full")

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	jobs chan cache.SyncJob
	poll time.Duration
}

// NewMemoryQueue returns a MemoryQueue buffering up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{jobs: make(chan cache.SyncJob, size), poll: time.Second}
}

func (q *MemoryQueue) Push(_ context.Context, job cache.SyncJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*cache.SyncJob, error) {
	timer := time.NewTimer(q.poll)
	defer timer.Stop()
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

// Syncer is the part of Coordinator the job runner needs.
type Syncer interface {
	Sync(ctx context.Context, id string, mode Mode) (*SyncResult, error)
	SyncAll(ctx context.Context, mode Mode, parallel int) ([]SyncResult, error)
}

// Jobs runs queued syncs in the background.
type Jobs struct {
	syncer  Syncer
	queue   Queue
	workers int
	log     *logrus.Entry
}

// NewJobs returns a runner with the given number of worker goroutines.
func NewJobs(s Syncer, q Queue, workers int) *Jobs {
	if workers <= 0 {
		workers = 1
	}
	return &Jobs{syncer: s, queue: q, workers: workers, log: logrus.WithField("component", "jobs")}
}

// Enqueue schedules a sync of id.
func (j *Jobs) Enqueue(ctx context.Context, id string, mode Mode) error {
	job := cache.SyncJob{ProviderID: id, Mode: string(mode), EnqueuedAt: time.Now().UTC()}
	if err := j.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue sync %s: %w", id, err)
	}
	return nil
}

// Run processes jobs until ctx is done.
func (j *Jobs) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < j.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.loop(ctx)
		}()
	}
	wg.Wait()
}

func (j *Jobs) loop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := j.queue.Pop(ctx)
		if err != nil {
			j.log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		j.handle(ctx, *job)
	}
}

func (j *Jobs) handle(ctx context.Context, job cache.SyncJob) {
	log := j.log.WithFields(logrus.Fields{"provider_id": job.ProviderID, "mode": job.Mode})
	mode, err := ParseMode(job.Mode)
	if err != nil {
		log.WithError(err).Warn("dropping job")
		return
	}
	_, err = j.syncer.Sync(ctx, job.ProviderID, mode)
	var nf *ProviderNotFoundError
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		log.Info("sync already running, job dropped")
	case errors.As(err, &nf):
		log.Info("provider gone, job dropped")
	default:
		// Failures are already recorded on the provider.
		log.WithError(err).Debug("job finished with error")
	}
}

// Refresh runs SyncAll every interval until ctx is done. interval <= 0
// disables it.
func (j *Jobs) Refresh(ctx context.Context, interval time.Duration, mode Mode) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := j.syncer.SyncAll(ctx, mode, j.workers)
			entry := j.log.WithField("synced", len(results))
			if err != nil {
				entry.WithError(err).Warn("periodic refresh finished with errors")
				continue
			}
			entry.Info("periodic refresh finished")
		}
	}
}
