// Command marketd runs the recycling marketplace core behind its REST API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/ReLoop-Network/market_layer/internal/app"
	"github.com/ReLoop-Network/market_layer/internal/app/httpapi"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	walletsvc "github.com/ReLoop-Network/market_layer/internal/app/services/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/kv"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/memory"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/postgres"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/redisstore"
	"github.com/ReLoop-Network/market_layer/internal/config"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fullStore is the intersection every backend satisfies.
type fullStore interface {
	storage.JobStore
	storage.UserStore
	storage.TransactionStore
	storage.StatsStore
	storage.IdentityStore
	storage.SessionStore
	storage.AdminStore
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("configure store: %w", err)
	}
	defer cleanup()

	rates, err := cfg.Rates()
	if err != nil {
		return fmt.Errorf("load rates: %w", err)
	}

	sim := ledger.NewSimulator(ledger.SimulatorConfig{
		Network:      cfg.Ledger.Network,
		Latency:      cfg.Ledger.Latency,
		ConfirmAfter: cfg.Ledger.ConfirmAfter,
		FaucetAmount: cfg.Ledger.FaucetAmount,
	}, log.WithField("component", "ledger-sim"))

	application, err := app.New(app.Stores{
		Jobs:         store,
		Users:        store,
		Transactions: store,
		Stats:        store,
		Identities:   store,
		Sessions:     store,
		Admin:        store,
	}, sim, app.Options{
		Rates:            rates,
		RolloverSchedule: cfg.Stats.RolloverSchedule,
		WalletOptions:    []walletsvc.Option{walletsvc.WithPollInterval(cfg.Wallet.PollInterval)},
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return err
	}

	if sess, err := application.Wallet.Restore(ctx); err != nil {
		log.WithError(err).Warn("session restore failed")
	} else if sess.Address != "" {
		log.WithField("address", sess.Address).Info("restored wallet session")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewHandler(application, store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}
	return application.Stop(shutdownCtx)
}

func buildStore(cfg *config.Config) (fullStore, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Storage.Backend) {
	case "memory":
		return memory.New(), noop, nil

	case "file", "":
		store, err := kv.Open(cfg.Storage.Dir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, noop, fmt.Errorf("STORAGE_POSTGRES_DSN is required for the postgres backend")
		}
		db, err := sql.Open("postgres", cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		store := postgres.New(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, noop, err
		}
		return store, func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		store, err := redisstore.New(client, "")
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		return store, func() { client.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
