// Package metrics declares the Prometheus counters exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts requests served by the calculation API.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Requests served by the calculation API",
		},
		[]string{"endpoint", "status"},
	)

	// CalculationErrors counts rejected or failed calculations.
	CalculationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calculation_errors_total",
			Help: "Rejected or failed calculations",
		},
		[]string{"endpoint", "error_type"},
	)

	// BackendRequests counts calls made to the backend API.
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Calls made to the backend API",
		},
		[]string{"endpoint", "status"},
	)

	// SupersededResponses counts schedule responses dropped because a newer
	// selection was issued.
	SupersededResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "superseded_responses_total",
			Help: "Schedule responses dropped in favour of a newer selection",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
