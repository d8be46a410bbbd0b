package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
)

func TestMoveDuePromotesOnlyDueJobs(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewMover(rdb, time.Second)

	now := time.Now()
	rdb.ZAdd(ctx, cache.JobDelayedQueue,
		redis.Z{Score: float64(now.Add(-time.Second).UnixMilli()), Member: "due-job"},
		redis.Z{Score: float64(now.Add(time.Hour).UnixMilli()), Member: "future-job"},
	)

	n, err := m.MoveDue(ctx, now)
	if err != nil {
		t.Fatalf("MoveDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted = %d, want 1", n)
	}

	pending, err := rdb.LRange(ctx, cache.JobQueue, 0, -1).Result()
	if err != nil || len(pending) != 1 || pending[0] != "due-job" {
		t.Fatalf("pending = %v err %v, want the due job only", pending, err)
	}
	remaining, _ := rdb.ZRange(ctx, cache.JobDelayedQueue, 0, -1).Result()
	if len(remaining) != 1 || remaining[0] != "future-job" {
		t.Fatalf("delayed = %v, want the future job only", remaining)
	}

	// A second pass finds nothing due.
	n, err = m.MoveDue(ctx, now)
	if err != nil || n != 0 {
		t.Fatalf("second MoveDue = %d, %v, want 0", n, err)
	}
}
