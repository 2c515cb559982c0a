package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/config"
	"github.com/matthewbaird/reportcore/internal/eventbus"
	"github.com/matthewbaird/reportcore/internal/logging"
	"github.com/matthewbaird/reportcore/internal/seed"
	"github.com/matthewbaird/reportcore/internal/server"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/wire"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	cat := catalog.NewMemory()
	if cfg.Catalog.Dir != "" {
		n, err := cat.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		log.Info().Int("reports", n).Str("dir", cfg.Catalog.Dir).Msg("catalog loaded")
	}
	if cfg.SeedDemo {
		if err := seed.Load(ctx, cat, st, time.Now()); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	bus := eventbus.New(256)
	engine := analytics.New(cat, st,
		analytics.WithLocation(loc),
		analytics.WithPublisher(bus),
		analytics.WithCacheSize(cfg.Reports.CacheSize),
		analytics.WithParallelism(cfg.Reports.ParallelThreshold, cfg.Reports.Workers),
	)
	live := wire.NewHandler(wire.NewManager(), engine, wire.WithIdleTimeout(cfg.Server.LiveIdleTimeout))

	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Subscribe("cache", engine)
	bus.Subscribe("live", live)
	bus.Start(ctx)
	defer bus.Stop()

	return server.Run(ctx, server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
		Engine:          engine,
		Live:            live,
	})
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Info().Msg("using in-memory document store")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("sqlite", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	st := store.NewSQLiteStore(db)
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("running schema migration: %w", err)
	}
	log.Info().Msg("database migrated successfully")
	return st, func() { st.Close() }, nil
}
