package jobs

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sampler periodically snapshots the queue depths for status reporting.
// Readers get the last complete sample without touching the cache.
type Sampler struct {
	rdb      *redis.Client
	interval time.Duration
	last     atomic.Pointer[QueueDepths]
}

// NewSampler creates a Sampler.
func NewSampler(rdb *redis.Client, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Sampler{rdb: rdb, interval: interval}
	s.last.Store(&QueueDepths{})
	return s
}

// Last returns the most recent sample.
func (s *Sampler) Last() QueueDepths {
	return *s.last.Load()
}

// Run samples until ctx is cancelled. One immediate sample runs at start so
// status endpoints are populated right away.
func (s *Sampler) Run(ctx context.Context) {
	s.sample(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	d, err := Depths(ctx, s.rdb)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[jobs] warning: depth sample: %v", err)
		}
		return
	}
	s.last.Store(&d)
}
