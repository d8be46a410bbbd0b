package jobs

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
)

// moverScript atomically drains due members of the delayed zset into the
// pending list. Server-side so that concurrent movers (or a mover racing a
// worker restart) never double-deliver.
var moverScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
if #due == 0 then
  return 0
end
for i = 1, #due do
  redis.call('ZREM', KEYS[1], due[i])
  redis.call('LPUSH', KEYS[2], due[i])
end
return #due
`)

const moverBatch = 100

// Mover periodically promotes due delayed jobs. It is the only mechanism
// that moves delayed jobs, so retries survive process restarts.
type Mover struct {
	rdb      *redis.Client
	interval time.Duration
}

// NewMover creates a Mover.
func NewMover(rdb *redis.Client, interval time.Duration) *Mover {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mover{rdb: rdb, interval: interval}
}

// Run promotes due jobs until ctx is cancelled.
func (m *Mover) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.MoveDue(ctx, time.Now()); err != nil {
				if ctx.Err() == nil {
					log.Printf("[jobs] warning: delayed mover: %v", err)
				}
			} else if n > 0 {
				log.Printf("[jobs] promoted %d delayed jobs", n)
			}
		}
	}
}

// MoveDue promotes every job whose unlock time is at or before now.
func (m *Mover) MoveDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := moverScript.Run(ctx, m.rdb,
		[]string{cache.JobDelayedQueue, cache.JobQueue},
		now.UnixMilli(), moverBatch,
	).Int64()
	if err != nil {
		return 0, err
	}
	return n, nil
}
