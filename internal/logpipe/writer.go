// Package logpipe drains the shared decision-log queue into the primary
// store with an at-least-once two-list protocol.
package logpipe

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/model"
	"github.com/autoguard/autoguard/internal/store"
)

// Config tunes the writer loop.
type Config struct {
	BatchSize     int           // max records per transaction, default 100
	PollTimeout   time.Duration // blocking wait for the first record
	StatsInterval time.Duration // cumulative counter emission period
}

// Writer is the single queue consumer. Only one writer should run per
// deployment; correctness does not depend on it but write throughput does.
type Writer struct {
	rdb  *redis.Client
	repo *store.CloakLogRepo
	cfg  Config

	received *xsync.Counter
	inserted *xsync.Counter
	failed   *xsync.Counter
}

// NewWriter creates a Writer.
func NewWriter(rdb *redis.Client, repo *store.CloakLogRepo, cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 10 * time.Second
	}
	return &Writer{
		rdb:      rdb,
		repo:     repo,
		cfg:      cfg,
		received: xsync.NewCounter(),
		inserted: xsync.NewCounter(),
		failed:   xsync.NewCounter(),
	}
}

// Stats is a snapshot of the cumulative counters.
type Stats struct {
	Received int64 `json:"received"`
	Inserted int64 `json:"inserted"`
	Failed   int64 `json:"failed"`
}

// Stats returns the current counter values.
func (w *Writer) Stats() Stats {
	return Stats{
		Received: w.received.Value(),
		Inserted: w.inserted.Value(),
		Failed:   w.failed.Value(),
	}
}

// Run drains the queue until ctx is cancelled. It first re-queues records a
// previous process left in flight, then loops over batches.
func (w *Writer) Run(ctx context.Context) {
	if n, err := w.recoverProcessing(ctx); err != nil {
		log.Printf("[logpipe] warning: recover in-flight records: %v", err)
	} else if n > 0 {
		log.Printf("[logpipe] re-queued %d in-flight records from previous run", n)
	}

	statsTicker := time.NewTicker(w.cfg.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[logpipe] writer stopped: %v", w.Stats())
			return
		case <-statsTicker.C:
			s := w.Stats()
			log.Printf("[logpipe] received=%d inserted=%d failed=%d", s.Received, s.Inserted, s.Failed)
		default:
		}
		if err := w.drainOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[logpipe] warning: drain: %v", err)
			sleepCtx(ctx, time.Second)
		}
	}
}

// recoverProcessing moves residual in-flight records back to the pending
// list. Runs before normal processing so a crashed batch is not lost.
func (w *Writer) recoverProcessing(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := w.rdb.RPopLPush(ctx, cache.LogProcessingQueue, cache.LogQueue).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// drainOnce moves up to one batch into flight, inserts it, and acknowledges.
// On insert failure every moved record goes back to the pending list and the
// writer backs off for a second.
func (w *Writer) drainOnce(ctx context.Context) error {
	raw, err := w.rdb.BRPopLPush(ctx, cache.LogQueue, cache.LogProcessingQueue, w.cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil // quiet period
	}
	if err != nil {
		return err
	}
	batch := []string{raw}
	for len(batch) < w.cfg.BatchSize {
		raw, err := w.rdb.RPopLPush(ctx, cache.LogQueue, cache.LogProcessingQueue).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			break
		}
		batch = append(batch, raw)
	}
	w.received.Add(int64(len(batch)))

	records := make([]model.CloakLogRecord, 0, len(batch))
	inFlight := make([]string, 0, len(batch))
	for _, item := range batch {
		var rec model.CloakLogRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// Poison entry: acknowledge it so it cannot wedge the queue.
			log.Printf("[logpipe] warning: drop undecodable record: %v", err)
			w.rdb.LRem(ctx, cache.LogProcessingQueue, 1, item)
			w.failed.Inc()
			continue
		}
		records = append(records, rec)
		inFlight = append(inFlight, item)
	}
	if len(records) == 0 {
		return nil
	}

	if _, err := w.repo.InsertBatch(records); err != nil {
		// Move everything still in flight back to pending and back off.
		for _, item := range inFlight {
			w.rdb.LRem(ctx, cache.LogProcessingQueue, 1, item)
			w.rdb.LPush(ctx, cache.LogQueue, item)
		}
		w.failed.Add(int64(len(records)))
		sleepCtx(ctx, time.Second)
		return err
	}

	for _, item := range inFlight {
		w.rdb.LRem(ctx, cache.LogProcessingQueue, 1, item)
	}
	w.inserted.Add(int64(len(records)))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
