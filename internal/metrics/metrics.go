// Package metrics exposes Prometheus gauges/counters for the detector
// (SPEC_FULL.md §4): active market count, rejection causes, alert
// verdicts, and aggregator/poller health, served at /metrics by the
// composition root. Grounded on chidi150c-coinbase's metrics.go pattern
// (package-level prometheus.NewCounterVec/GaugeVec registered in init,
// thin labeled-increment helpers).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	activeMarkets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dexsentinel_active_markets",
			Help: "Currently active markets, by chain and market type.",
		},
		[]string{"chain", "type"},
	)

	pendingMarkets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dexsentinel_pending_markets",
			Help: "Markets registered but not yet gated, by chain.",
		},
		[]string{"chain"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexsentinel_rejections_total",
			Help: "Gate Pipeline rejections, by chain and check name.",
		},
		[]string{"chain", "check"},
	)

	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexsentinel_alerts_total",
			Help: "Dispatched alerts, by chain and verdict.",
		},
		[]string{"chain", "verdict"},
	)

	slotsUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dexsentinel_subscription_slots_used",
			Help: "Subscription slots currently held against MAX_ACTIVE_MARKETS.",
		},
	)

	aggregatorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexsentinel_aggregator_requests_total",
			Help: "Aggregator HTTP requests, by outcome (ok|error).",
		},
		[]string{"outcome"},
	)

	trendingPollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexsentinel_trending_poll_errors_total",
			Help: "Trending poller failures, by chain.",
		},
		[]string{"chain"},
	)
)

func init() {
	prometheus.MustRegister(activeMarkets, pendingMarkets)
	prometheus.MustRegister(rejections, alerts)
	prometheus.MustRegister(slotsUsed)
	prometheus.MustRegister(aggregatorRequests, trendingPollErrors)
}

// SetActiveMarkets records the current active-market count for (chain, type).
func SetActiveMarkets(chain, marketType string, n int) {
	activeMarkets.WithLabelValues(chain, marketType).Set(float64(n))
}

// SetPendingMarkets records the current pending-market count for chain.
func SetPendingMarkets(chain string, n int) {
	pendingMarkets.WithLabelValues(chain).Set(float64(n))
}

// IncRejection records a Gate Pipeline rejection for (chain, check).
func IncRejection(chain, check string) {
	rejections.WithLabelValues(chain, check).Inc()
}

// IncAlert records a dispatched alert for (chain, verdict).
func IncAlert(chain, verdict string) {
	alerts.WithLabelValues(chain, verdict).Inc()
}

// SetSlotsUsed records the current subscription slot usage.
func SetSlotsUsed(n int) {
	slotsUsed.Set(float64(n))
}

// IncAggregatorRequest records an aggregator HTTP call outcome ("ok" or "error").
func IncAggregatorRequest(outcome string) {
	aggregatorRequests.WithLabelValues(outcome).Inc()
}

// IncTrendingPollError records a failed trending poll for chain.
func IncTrendingPollError(chain string) {
	trendingPollErrors.WithLabelValues(chain).Inc()
}
