package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/landloop/territory-engine/internal/clock"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/engine"
	"github.com/landloop/territory-engine/internal/events"
	"github.com/landloop/territory-engine/internal/index"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/internal/observability"
	"github.com/landloop/territory-engine/internal/server"
	"github.com/landloop/territory-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file; defaults apply when empty")
	flag.Parse()

	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid config", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	pg, err := store.OpenPostgres(cfg.Postgres.DSN, log)
	if err != nil {
		log.Error(ctx, "failed to open territory store", logging.Err(err))
		os.Exit(1)
	}
	defer pg.Close()

	var territoryStore store.TerritoryStore = pg
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		territoryStore = store.NewCachedStore(pg, rdb, cfg.Snapshot.CacheTTL, log)
		log.Info(ctx, "snapshot cache enabled", logging.String("addr", cfg.Redis.Addr))
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers)
		defer kp.Close()
		publisher = kp
		log.Info(ctx, "event publishing enabled", logging.Any("brokers", cfg.Kafka.Brokers))
	}

	idx := index.New(cfg.Index.CellSizeM)
	eng := engine.New(cfg, idx, territoryStore,
		engine.WithLogger(log),
		engine.WithClock(clock.Real{}),
		engine.WithEvents(publisher),
		engine.WithMetrics(collector),
	)
	defer eng.Close()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go func() {
		if err := eng.Run(runCtx); err != nil {
			log.Error(ctx, "engine loop exited", logging.Err(err))
		}
	}()

	srv := server.New(cfg.Server, eng, log, collector)
	serveErrs := srv.Start()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-stopCtx.Done():
		log.Info(ctx, "shutting down")
	case err, ok := <-serveErrs:
		if ok && err != nil {
			log.Error(ctx, "http server failed", logging.Err(err))
		}
	}

	stopRun()
	if err := srv.Stop(context.Background()); err != nil {
		log.Warn(ctx, "http shutdown failed", logging.Err(err))
	}
}
