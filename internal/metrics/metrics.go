// Package metrics exposes Prometheus collectors for the gateway.
//
// Primary series:
//   - ledger_upstream_requests_total{type,status}: /info calls by request type
//   - ledger_cache_lookups_total{cache,result}: fills/clearinghouse cache traffic
//   - ledger_leaderboard_build_seconds: fan-out duration histogram
//   - ledger_registered_users: current registry size (gauge)
//
// Registered in init() and served by promhttp at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_upstream_requests_total",
			Help: "Upstream /info requests by type and outcome",
		},
		[]string{"type", "status"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_lookups_total",
			Help: "Cache lookups by store and result",
		},
		[]string{"cache", "result"},
	)

	LeaderboardBuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_leaderboard_build_seconds",
			Help:    "Wall time to compute a leaderboard snapshot",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	RegisteredUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_registered_users",
			Help: "Number of registered leaderboard users",
		},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequests,
		CacheLookups,
		LeaderboardBuildSeconds,
		RegisteredUsers,
	)
}

// Handler returns the Prometheus text exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
