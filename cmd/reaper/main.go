// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"userledger/internal/config"
	"userledger/internal/eventlog"
	"userledger/internal/logging"
	"userledger/internal/persistence/postgres"
	"userledger/internal/reaper"
	"userledger/internal/store"
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

	if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	backend, err := eventlog.NewESDBBackend(cfg.EventStoreURL)
	if err != nil {
		log.Fatalf("event log connect failed: %v", err)
	}
	defer func() { _ = backend.Close() }()

	r := reaper.New(reaper.Deps{
		Store:    store.NewUsers(pool, logger),
		Log:      eventlog.NewGateway(backend, logger),
		Logger:   logger,
		Interval: cfg.ReapInterval,
		Grace:    cfg.ReapGrace,
	})

	r.Start()

	<-ctx.Done()
	r.Stop()
}
