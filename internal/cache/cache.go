// Package cache provides the shared-cache (Redis) connection and the
// canonical key namespace used across processes.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dial parses the URL, connects, and verifies the connection with a PING.
// A failed PING is a warning, not an error: the gateway degrades to
// Safe-for-all when the shared cache is down, it does not refuse to start.
func Dial(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[cache] warning: redis ping failed (continuing degraded): %v", err)
	}
	return client, nil
}
