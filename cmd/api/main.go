// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userledger/internal/config"
	"userledger/internal/eventlog"
	"userledger/internal/logging"
	"userledger/internal/persistence/postgres"
	"userledger/internal/service"
	"userledger/internal/store"
	httptransport "userledger/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	backend, closeBackend, err := newLogBackend(cfg)
	if err != nil {
		log.Fatalf("event log connect failed: %v", err)
	}
	defer closeBackend()

	users := service.NewUsers(
		store.NewUsers(pool, logger),
		eventlog.NewGateway(backend, logger),
		logger,
	)

	handler := httptransport.NewRouter(httptransport.Deps{
		Users:        users,
		Health:       postgres.NewSchemaHealthChecker(pool),
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
		Version:      Version,
		Commit:       Commit,
		BuildDate:    BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

// newLogBackend builds the audit log backend. EVENTSTORE_URL=memory selects
// the in-process backend, which is only suitable for local development.
func newLogBackend(cfg config.Config) (eventlog.Backend, func(), error) {
	if cfg.EventStoreURL == "memory" {
		return eventlog.NewMemoryBackend(), func() {}, nil
	}

	backend, err := eventlog.NewESDBBackend(cfg.EventStoreURL)
	if err != nil {
		return nil, nil, err
	}
	return backend, func() { _ = backend.Close() }, nil
}
