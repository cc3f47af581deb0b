// SPDX-License-Identifier: Apache-2.0

// Package reaper runs the recurring retention sweep: users whose removal
// timestamp has outlived the grace window are deleted from the primary
// store, then their audit streams are deleted. The two deletions are one
// logical unit but not one transaction; a stream that survives a failed
// delete is an operational leftover, never a correctness problem for the
// primary store.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"userledger/internal/domain"
	"userledger/internal/eventlog"
	"userledger/internal/metrics"
)

// Store is the slice of the primary store the reaper needs.
type Store interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) ([]domain.User, error)
}

// EventLog deletes whole streams.
type EventLog interface {
	Delete(ctx context.Context, streamKey string) error
}

type Deps struct {
	Store    Store
	Log      EventLog
	Logger   *slog.Logger
	Interval time.Duration
	Grace    time.Duration
	Now      func() time.Time
}

type Reaper struct {
	store    Store
	log      EventLog
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
	now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(deps Deps) *Reaper {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	grace := deps.Grace
	if grace <= 0 {
		grace = 24 * time.Hour
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Reaper{
		store:    deps.Store,
		log:      deps.Log,
		logger:   l,
		interval: interval,
		grace:    grace,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it twice is a no-op.
func (r *Reaper) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}

	r.logger.Info("retention reaper started",
		"interval", r.interval,
		"grace", r.grace,
	)

	go r.loop()
}

// Stop stops scheduling new sweeps and waits for an in-flight one to finish.
// It never aborts a sweep mid-batch.
func (r *Reaper) Stop() {
	if !r.started.Load() {
		return
	}

	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done

	r.logger.Info("retention reaper stopped")
}

func (r *Reaper) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.RunOnce(context.Background()); err != nil {
				r.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep: purge expired rows in one primary transaction,
// then delete the corresponding streams concurrently. Stream deletions are
// fire-and-forget relative to each other; one failure never blocks the rest
// and never rolls back the primary delete.
func (r *Reaper) RunOnce(ctx context.Context) error {
	started := r.now()
	cutoff := started.Add(-r.grace)

	purged, err := r.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge expired users: %w", err)
	}

	if len(purged) > 0 {
		var wg sync.WaitGroup
		for _, u := range purged {
			wg.Add(1)
			go func(u domain.User) {
				defer wg.Done()

				key := eventlog.UserStream(u.ID)
				if err := r.log.Delete(ctx, key); err != nil {
					// The row is already gone; the stream is left for a
					// later sweep or manual cleanup.
					r.logger.Error("stream delete failed", "stream", key, "error", err)
					return
				}
				r.logger.Info("user purged", "user_id", u.ID, "stream", key)
			}(u)
		}
		wg.Wait()

		metrics.AddPurgedUsers(len(purged))
	}

	metrics.ObserveSweep(time.Since(started))
	return nil
}
