package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskflow",
			Subsystem: "progression",
			Name:      "awards_total",
			Help:      "Point transactions recorded, by event type",
		},
		[]string{"type"},
	)

	DuplicateEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "progression",
		Name:      "duplicate_events_total",
		Help:      "Award events rejected by the idempotency key",
	})

	LockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "progression",
		Name:      "lock_timeouts_total",
		Help:      "Per-user critical sections that timed out",
	})

	AchievementsUnlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "progression",
		Name:      "achievements_unlocked_total",
		Help:      "Achievements newly unlocked",
	})

	LedgerDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "progression",
		Name:      "ledger_drift_total",
		Help:      "Users found with ledger sum != stored points",
	})
)

// ServeMetrics exposes /metrics on its own listener, away from the Fiber app.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
