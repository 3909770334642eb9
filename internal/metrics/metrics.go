package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProfileResolutions counts resolver outcomes by the path that produced
	// them ("email", "id", "none") and outcome ("found", "not_found").
	ProfileResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_resolutions_total",
			Help: "Total number of profile resolutions",
		},
		[]string{"path", "outcome"},
	)

	ProfileFetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_fetch_attempts_total",
			Help: "Total number of profile fetch attempts, including retries",
		},
		[]string{"path"},
	)

	// StaleWritesDropped counts results discarded because a newer chain or
	// a sign-out superseded the chain that produced them.
	StaleWritesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_stale_writes_dropped_total",
			Help: "Total number of auth context writes dropped as stale",
		},
	)

	ActiveAuthContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_contexts_active",
			Help: "Number of live per-session auth contexts",
		},
	)

	RecCacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reccache_writes_total",
			Help: "Recommendation cache slot writes by result (written, skipped_empty, error)",
		},
		[]string{"slot", "result"},
	)

	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Recommendation service calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
