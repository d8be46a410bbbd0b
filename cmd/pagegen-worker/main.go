// Command pagegen-worker consumes page-generation jobs: the worker loop,
// the delayed-job mover and the queue-depth sampler.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/autoguard/autoguard/internal/buildinfo"
	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/config"
	"github.com/autoguard/autoguard/internal/jobs"
	"github.com/autoguard/autoguard/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	db, err := store.Bootstrap(envCfg.StateDir, config.DBFilename)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := cache.Dial(envCfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	runner := jobs.NewRunner(rdb, store.NewPageRepo(db),
		jobs.NewFilePageGenerator(envCfg.PageRoot),
		jobs.RunnerConfig{
			PollTimeout:   envCfg.JobPollTimeout,
			MaxConcurrent: int64(envCfg.JobMaxConcurrent),
			MaxAttempts:   envCfg.JobMaxAttempts,
			RetryBase:     envCfg.JobRetryBase,
			RetryMax:      envCfg.JobRetryMax,
			RetryJitter:   envCfg.JobRetryJitter,
		})
	mover := jobs.NewMover(rdb, envCfg.JobMoverInterval)
	sampler := jobs.NewSampler(rdb, envCfg.JobMetricsInterval)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); runner.Run(ctx) }()
	go func() { defer wg.Done(); mover.Run(ctx) }()
	go func() { defer wg.Done(); sampler.Run(ctx) }()
	log.Printf("pagegen-worker %s started (max %d in flight)", buildinfo.Version, envCfg.JobMaxConcurrent)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received signal %s, shutting down", sig)

	cancel()
	wg.Wait()
	log.Println("worker stopped")
	return nil
}
