// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	savesTotalCounter         *prometheus.CounterVec
	appendedEventsCounter     prometheus.Counter
	appendFailuresCounter     prometheus.Counter
	droppedEntriesCounter     prometheus.Counter
	purgedUsersCounter        prometheus.Counter
	reaperSweepsCounter       prometheus.Counter
	reaperSweepDurationMetric prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		savesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "user_saves_total",
				Help: "Total number of committed user saves by operation.",
			},
			[]string{"op"},
		)

		appendedEventsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventlog_appended_events_total",
				Help: "Total number of change events appended to audit streams.",
			},
		)

		appendFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventlog_append_failures_total",
				Help: "Total number of failed audit stream appends.",
			},
		)

		droppedEntriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventlog_dropped_entries_total",
				Help: "Total number of unreadable history entries dropped on read.",
			},
		)

		purgedUsersCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reaper_purged_users_total",
				Help: "Total number of users permanently removed by the retention reaper.",
			},
		)

		reaperSweepsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reaper_sweeps_total",
				Help: "Total number of completed retention sweeps.",
			},
		)

		reaperSweepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reaper_sweep_duration_seconds",
				Help:    "Duration of retention sweeps in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			savesTotalCounter,
			appendedEventsCounter,
			appendFailuresCounter,
			droppedEntriesCounter,
			purgedUsersCounter,
			reaperSweepsCounter,
			reaperSweepDurationMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, op := range []string{"create", "update", "delete"} {
			savesTotalCounter.WithLabelValues(op)
		}
	})
}

func IncSaves(op string) {
	Init()
	savesTotalCounter.WithLabelValues(op).Inc()
}

func AddAppendedEvents(n int) {
	Init()
	appendedEventsCounter.Add(float64(n))
}

func IncAppendFailures() {
	Init()
	appendFailuresCounter.Inc()
}

func IncDroppedEntries() {
	Init()
	droppedEntriesCounter.Inc()
}

func AddPurgedUsers(n int) {
	Init()
	purgedUsersCounter.Add(float64(n))
}

func ObserveSweep(d time.Duration) {
	Init()
	reaperSweepsCounter.Inc()
	reaperSweepDurationMetric.Observe(d.Seconds())
}
