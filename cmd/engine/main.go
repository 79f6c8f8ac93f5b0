package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/treasury-engine/internal/api"
	"github.com/example/treasury-engine/internal/config"
	"github.com/example/treasury-engine/internal/engine"
	"github.com/example/treasury-engine/internal/policy"
	"github.com/example/treasury-engine/internal/snapshot"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to build snapshot store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	limits := policy.Limits{
		SinglePaymentCeiling: cfg.SinglePaymentCeiling,
		BatchTotalCeiling:    cfg.BatchTotalCeiling,
		DailySpendingLimit:   cfg.DailySpendingLimit,
		ReserveRatio:         cfg.ReserveRatio,
	}

	eng := engine.New(store, logger, engine.WithLimits(limits))

	router := api.NewRouter(api.Dependencies{
		Logger: logger,
		Engine: eng,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("treasury engine listening", "addr", cfg.ListenAddr, "store", cfg.SnapshotStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (snapshot.Store, func(), error) {
	noop := func() {}

	switch cfg.SnapshotStore {
	case config.StoreSQLite:
		db, err := sql.Open("sqlite3", cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		store := snapshot.NewSQLiteStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return store, func() { db.Close() }, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return snapshot.NewPostgresStore(pool), pool.Close, nil

	default:
		return snapshot.NewMemoryStore(snapshot.Demo(time.Now().UTC())), noop, nil
	}
}
