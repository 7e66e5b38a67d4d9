// Package metrics holds the service's Prometheus collectors. They are
// registered on the default registry and exposed by promhttp.Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneychat_nlp_requests_total",
			Help: "Total number of API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok or an error kind
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneychat_nlp_cache_lookups_total",
			Help: "Total number of request cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moneychat_nlp_upstream_duration_seconds",
			Help:    "Duration of extraction service calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"op", "outcome"},
	)

	expensesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moneychat_nlp_expenses_extracted_total",
			Help: "Total number of expenses that passed validation",
		},
	)

	expensesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moneychat_nlp_expenses_rejected_total",
			Help: "Total number of extracted items dropped by validation",
		},
	)
)

// ObserveRequest counts one finished API request.
func ObserveRequest(endpoint, outcome string) {
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// ObserveUpstream records one extraction service call. It matches llm.Observer.
func ObserveUpstream(op string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}

// ObserveExpenses counts accepted and rejected items of one extraction.
func ObserveExpenses(accepted, rejected int) {
	expensesExtracted.Add(float64(accepted))
	expensesRejected.Add(float64(rejected))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
