package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/autoguard/autoguard/internal/api"
	"github.com/autoguard/autoguard/internal/blacklist"
	"github.com/autoguard/autoguard/internal/buildinfo"
	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/config"
	"github.com/autoguard/autoguard/internal/detect"
	"github.com/autoguard/autoguard/internal/gateway"
	"github.com/autoguard/autoguard/internal/geoip"
	"github.com/autoguard/autoguard/internal/jobs"
	"github.com/autoguard/autoguard/internal/logpipe"
	"github.com/autoguard/autoguard/internal/offer"
	"github.com/autoguard/autoguard/internal/store"
)

// autoguardApp owns the gateway-process lifecycle: the HTTP server, the log
// writer, the GeoIP service and the blacklist rebuild scheduler.
type autoguardApp struct {
	envCfg *config.EnvConfig
	db     *sql.DB
	rdb    *redis.Client

	geoSvc      *geoip.Service
	rebuilder   *blacklist.Rebuilder
	rebuildCron *cron.Cron
	writer      *logpipe.Writer
	srv         *api.Server

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	app, err := newAutoguardApp(envCfg)
	if err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("autoguard %s listening on %s:%d", buildinfo.Version, envCfg.ListenAddress, envCfg.Port)
		if err := app.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runtimeErr error
	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case runtimeErr = <-serverErrCh:
		log.Printf("server error, shutting down: %v", runtimeErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)
	return runtimeErr
}

func newAutoguardApp(envCfg *config.EnvConfig) (*autoguardApp, error) {
	db, err := store.Bootstrap(envCfg.StateDir, config.DBFilename)
	if err != nil {
		return nil, err
	}
	log.Println("primary store ready")

	rdb, err := cache.Dial(envCfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	geoSvc, err := geoip.NewService(geoip.ServiceConfig{
		CityDBPath:     envCfg.GeoIPCityDB,
		ASNDBPath:      envCfg.GeoIPASNDB,
		AnonDBPath:     envCfg.GeoIPAnonDB,
		ReloadSchedule: envCfg.GeoIPReloadSchedule,
		Redis:          rdb,
	})
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, err
	}

	app := &autoguardApp{
		envCfg: envCfg,
		db:     db,
		rdb:    rdb,
		geoSvc: geoSvc,
	}
	app.lifeCtx, app.lifeCancel = context.WithCancel(context.Background())

	blStore := blacklist.NewStore(rdb)
	app.rebuilder = blacklist.NewRebuilder(rdb, store.NewBlacklistRepo(db))
	app.startBlacklistRebuilds()

	policy := detect.DefaultPolicy()
	policy.SafeThreshold = envCfg.SafeThreshold
	engine := detect.NewEngine(geoSvc, blStore, policy, envCfg.DecisionTimeout)

	offerRepo := store.NewOfferRepo(db)
	resolver := offer.NewResolver(rdb, offerRepo)
	gw := gateway.NewHandler(resolver, engine, rdb, envCfg.PageRoot, envCfg.InlinePages)

	logRepo := store.NewCloakLogRepo(db)
	app.writer = logpipe.NewWriter(rdb, logRepo, logpipe.Config{
		BatchSize:     envCfg.LogBatchSize,
		PollTimeout:   envCfg.LogPollTimeout,
		StatsInterval: envCfg.LogStatsInterval,
	})
	go app.writer.Run(app.lifeCtx)

	pageRepo := store.NewPageRepo(db)
	app.srv = api.NewServer(api.ServerConfig{
		ListenAddress:   envCfg.ListenAddress,
		Port:            envCfg.Port,
		AdminToken:      envCfg.AdminToken,
		APIMaxBodyBytes: int64(envCfg.APIMaxBodyBytes),
		Status: api.StatusDeps{
			GeoIP:  geoSvc,
			Writer: app.writer,
			Redis:  rdb,
			Logs:   logRepo,
		},
		GeoIPLookup:      api.HandleGeoIPLookup(geoSvc),
		BlacklistRebuild: api.HandleBlacklistRebuild(app.rebuilder),
		RegeneratePage:   api.HandleRegeneratePage(pageRepo, resolver, jobs.NewEnqueuer(rdb)),
		Gateway:          gw,
	})
	return app, nil
}

// startBlacklistRebuilds runs one rebuild now so the cache is warm, then
// schedules the periodic refresh.
func (a *autoguardApp) startBlacklistRebuilds() {
	ctx, cancel := context.WithTimeout(a.lifeCtx, 30*time.Second)
	defer cancel()
	if err := a.rebuilder.Rebuild(ctx); err != nil {
		log.Printf("warning: initial blacklist rebuild: %v", err)
	}

	a.rebuildCron = cron.New()
	_, err := a.rebuildCron.AddFunc(a.envCfg.BlacklistRebuildSchedule, func() {
		ctx, cancel := context.WithTimeout(a.lifeCtx, 30*time.Second)
		defer cancel()
		if err := a.rebuilder.Rebuild(ctx); err != nil {
			log.Printf("warning: scheduled blacklist rebuild: %v", err)
		}
	})
	if err != nil {
		log.Printf("warning: blacklist rebuild schedule: %v", err)
		return
	}
	a.rebuildCron.Start()
}

func (a *autoguardApp) shutdown(ctx context.Context) {
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if a.rebuildCron != nil {
		a.rebuildCron.Stop()
	}
	a.lifeCancel()
	a.geoSvc.Stop()
	if err := a.db.Close(); err != nil {
		log.Printf("primary store close error: %v", err)
	}
	if err := a.rdb.Close(); err != nil {
		log.Printf("cache close error: %v", err)
	}
	log.Println("server stopped")
}
