package jobs

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/store"
)

// PageGenerator produces the static page for one job. Implementations live
// in this package (FilePageGenerator) and in tests.
type PageGenerator interface {
	Generate(ctx context.Context, job model.PageGenerationJob) error
}

// RunnerConfig tunes the worker loop.
type RunnerConfig struct {
	PollTimeout   time.Duration // BRPOPLPUSH block, default 5s
	MaxConcurrent int64         // in-flight cap per worker, default 2
	MaxAttempts   int           // total attempts before dead-letter, default 3
	RetryBase     time.Duration // first retry delay, default 2s
	RetryMax      time.Duration // delay ceiling, default 60s
	RetryJitter   float64       // uniform jitter ratio in [0, 1), 0 disables
	ShutdownGrace time.Duration // in-flight wait on stop, default 30s
}

func (c *RunnerConfig) setDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = 60 * time.Second
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		c.RetryJitter = 0.2
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
}

// Runner consumes page-generation jobs. Multiple runner processes may share
// the queues; each enforces its own concurrency cap.
type Runner struct {
	rdb   *redis.Client
	pages *store.PageRepo
	gen   PageGenerator
	cfg   RunnerConfig

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(rdb *redis.Client, pages *store.PageRepo, gen PageGenerator, cfg RunnerConfig) *Runner {
	cfg.setDefaults()
	return &Runner{
		rdb:   rdb,
		pages: pages,
		gen:   gen,
		cfg:   cfg,
		sem:   semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Run consumes jobs until ctx is cancelled, then waits up to the shutdown
// grace for in-flight jobs. Job attempts themselves are not cancellable;
// retry boundaries are the cancellation points.
func (r *Runner) Run(ctx context.Context) {
	if n, err := r.recoverProcessing(ctx); err != nil {
		log.Printf("[jobs] warning: recover in-flight jobs: %v", err)
	} else if n > 0 {
		log.Printf("[jobs] re-queued %d in-flight jobs from previous run", n)
	}

	for {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			break // cancelled
		}
		raw, err := r.rdb.BRPopLPush(ctx, cache.JobQueue, cache.JobProcessingQueue, r.cfg.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			r.sem.Release(1)
			continue
		}
		if err != nil {
			r.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			log.Printf("[jobs] warning: queue poll: %v", err)
			sleepCtx(ctx, time.Second)
			continue
		}

		job, err := DecodeJob(raw)
		if err != nil {
			// Undecodable payloads can never succeed; acknowledge and move on.
			log.Printf("[jobs] warning: drop malformed job: %v", err)
			r.ack(raw)
			r.sem.Release(1)
			continue
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.sem.Release(1)
			r.process(job, raw)
		}()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[jobs] runner stopped, all in-flight jobs finished")
	case <-time.After(r.cfg.ShutdownGrace):
		log.Printf("[jobs] warning: shutdown grace elapsed with jobs still in flight")
	}
}

func (r *Runner) recoverProcessing(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := r.rdb.RPopLPush(ctx, cache.JobProcessingQueue, cache.JobQueue).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// process runs one attempt to completion. Acknowledgement and page-row
// updates use a background context: once an attempt starts it finishes.
func (r *Runner) process(job model.PageGenerationJob, raw string) {
	ctx := context.Background()

	if err := r.pages.SetStatus(ctx, job.PageID, model.PageGenerating, ""); err != nil {
		log.Printf("[jobs] warning: page %d status: %v", job.PageID, err)
	}

	genErr := r.gen.Generate(ctx, job)
	if genErr == nil {
		r.ack(raw)
		if err := r.pages.SetStatus(ctx, job.PageID, model.PageGenerated, ""); err != nil {
			log.Printf("[jobs] warning: page %d status: %v", job.PageID, err)
		}
		log.Printf("[jobs] page %d variant %s generated (attempt %d)", job.PageID, job.Variant, job.Attempt+1)
		return
	}

	nextAttempt := job.Attempt + 1
	if nextAttempt < r.cfg.MaxAttempts {
		r.scheduleRetry(ctx, job, raw, genErr)
		return
	}
	r.deadLetter(ctx, job, raw, genErr)
}

func (r *Runner) scheduleRetry(ctx context.Context, job model.PageGenerationJob, raw string, genErr error) {
	retry := job
	retry.Attempt = job.Attempt + 1
	encoded, err := EncodeJob(retry)
	if err != nil {
		log.Printf("[jobs] warning: encode retry for page %d: %v", job.PageID, err)
		r.deadLetter(ctx, job, raw, genErr)
		return
	}

	delay := r.backoff(job.Attempt)
	unlockAt := time.Now().Add(delay)
	err = r.rdb.ZAdd(ctx, cache.JobDelayedQueue, redis.Z{
		Score:  float64(unlockAt.UnixMilli()),
		Member: encoded,
	}).Err()
	if err != nil {
		// Delayed scheduling is best effort; requeue immediately rather
		// than lose the job. Ordering suffers, delivery does not.
		log.Printf("[jobs] warning: delayed schedule for page %d: %v, requeueing now", job.PageID, err)
		if pushErr := r.rdb.LPush(ctx, cache.JobQueue, encoded).Err(); pushErr != nil {
			log.Printf("[jobs] warning: requeue page %d: %v", job.PageID, pushErr)
		}
	}
	r.ack(raw)

	if err := r.pages.SetStatus(ctx, job.PageID, model.PageGenerating, genErr.Error()); err != nil {
		log.Printf("[jobs] warning: page %d status: %v", job.PageID, err)
	}
	log.Printf("[jobs] job %s page %d variant %s attempt %d failed, retry in %s: %v",
		job.JobID, job.PageID, job.Variant, job.Attempt+1, delay.Round(time.Millisecond), genErr)
}

func (r *Runner) deadLetter(ctx context.Context, job model.PageGenerationJob, raw string, genErr error) {
	record, err := EncodeFailure(FailureRecord{
		Job:      job,
		Error:    genErr.Error(),
		Attempts: job.Attempt + 1,
		FailedAt: time.Now().UTC(),
	})
	if err == nil {
		if pushErr := r.rdb.LPush(ctx, cache.JobDeadQueue, record).Err(); pushErr != nil {
			log.Printf("[jobs] warning: dead-letter page %d: %v", job.PageID, pushErr)
		}
	}
	r.ack(raw)

	if err := r.pages.SetStatus(ctx, job.PageID, model.PageFailed, genErr.Error()); err != nil {
		log.Printf("[jobs] warning: page %d status: %v", job.PageID, err)
	}
	log.Printf("[jobs] job %s page %d variant %s exhausted %d attempts: %v", job.JobID, job.PageID, job.Variant, job.Attempt+1, genErr)
}

func (r *Runner) ack(raw string) {
	if err := r.rdb.LRem(context.Background(), cache.JobProcessingQueue, 1, raw).Err(); err != nil {
		log.Printf("[jobs] warning: ack: %v", err)
	}
}

// backoff computes min(retryMax, retryBase * 2^attempt) with a uniform
// jitter of ±RetryJitter applied.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.cfg.RetryBase
	for i := 0; i < attempt && d < r.cfg.RetryMax; i++ {
		d *= 2
	}
	if d > r.cfg.RetryMax {
		d = r.cfg.RetryMax
	}
	if r.cfg.RetryJitter > 0 {
		factor := 1 + (rand.Float64()*2-1)*r.cfg.RetryJitter
		d = time.Duration(float64(d) * factor)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
