package jobs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
)

// Enqueuer pushes page-generation jobs onto the pending queue. Used by the
// admin API; the worker process only consumes.
type Enqueuer struct {
	rdb *redis.Client
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(rdb *redis.Client) *Enqueuer {
	return &Enqueuer{rdb: rdb}
}

// Enqueue pushes one encoded job. A newer enqueue for the same (page,
// variant) supersedes earlier work at the page-row level: whichever attempt
// finishes last writes the final row state.
func (e *Enqueuer) Enqueue(ctx context.Context, raw string) error {
	if err := e.rdb.LPush(ctx, cache.JobQueue, raw).Err(); err != nil {
		return fmt.Errorf("jobs: enqueue: %w", err)
	}
	return nil
}

// QueueDepths is one sample of the four queue sizes.
type QueueDepths struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Depths samples the current queue sizes.
func Depths(ctx context.Context, rdb *redis.Client) (QueueDepths, error) {
	var d QueueDepths
	var err error
	if d.Pending, err = rdb.LLen(ctx, cache.JobQueue).Result(); err != nil {
		return d, fmt.Errorf("jobs: depth pending: %w", err)
	}
	if d.Processing, err = rdb.LLen(ctx, cache.JobProcessingQueue).Result(); err != nil {
		return d, fmt.Errorf("jobs: depth processing: %w", err)
	}
	if d.Delayed, err = rdb.ZCard(ctx, cache.JobDelayedQueue).Result(); err != nil {
		return d, fmt.Errorf("jobs: depth delayed: %w", err)
	}
	if d.Dead, err = rdb.LLen(ctx, cache.JobDeadQueue).Result(); err != nil {
		return d, fmt.Errorf("jobs: depth dead: %w", err)
	}
	return d, nil
}
