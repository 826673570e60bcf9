// Package metrics exposes the Prometheus instruments for the match
// service and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for Ragnarok.
type Registry struct {
	// HTTP surface
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	// Gameplay
	AnswersSubmitted *prometheus.CounterVec
	VerifiesTotal    *prometheus.CounterVec
	MatchesActive    prometheus.Gauge
	MatchesTotal     prometheus.Counter

	// Auth boundary
	AuthRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates and registers all Ragnarok metrics.
func NewRegistry() *Registry {
	r := &Registry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragnarok_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragnarok_http_requests_total",
				Help: "Total HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		AnswersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragnarok_answers_submitted_total",
				Help: "Answer submissions by result",
			},
			[]string{"result"},
		),
		VerifiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragnarok_verifies_total",
				Help: "Verify calls by result",
			},
			[]string{"result"},
		),
		MatchesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ragnarok_matches_registered",
				Help: "Matches currently held in the registry",
			},
		),
		MatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ragnarok_matches_created_total",
				Help: "Matches created since process start",
			},
		),
		AuthRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragnarok_auth_requests_total",
				Help: "Auth introspection outcomes",
			},
			[]string{"result"},
		),
		registry: prometheus.NewRegistry(),
	}
	r.registry.MustRegister(
		r.RequestDuration,
		r.RequestsTotal,
		r.AnswersSubmitted,
		r.VerifiesTotal,
		r.MatchesActive,
		r.MatchesTotal,
		r.AuthRequests,
	)
	return r
}

// Handler serves the Prometheus exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
