// Package metrics exposes Prometheus instrumentation for the background loops
// and broker adapters.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/brokerwatch/internal/domain"
)

const namespace = "brokerwatch"

// Loop results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	LoopCycles         *prometheus.CounterVec
	LoopAccountResults *prometheus.CounterVec
	LoopRestarts       *prometheus.CounterVec
	TokenRefreshes     *prometheus.CounterVec
	BrokerRequests     *prometheus.HistogramVec
	BrokerErrors       *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoopCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_cycles_total",
			Help:      "Completed background loop cycles",
		}, []string{"loop"}),
		LoopAccountResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_account_results_total",
			Help:      "Per-account outcomes of background loop cycles",
		}, []string{"loop", "result"}),
		LoopRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_restarts_total",
			Help:      "Background loops restarted after a panic",
		}, []string{"loop"}),
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts",
		}, []string{"broker", "result"}),
		BrokerRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broker_request_duration_seconds",
			Help:      "Latency of broker API requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"broker", "operation"}),
		BrokerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_request_errors_total",
			Help:      "Broker API requests that failed, by error kind",
		}, []string{"broker", "operation", "kind"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records a broker call
func (m *Metrics) ObserveRequest(b domain.Broker, operation string, duration time.Duration, err error) {
	m.BrokerRequests.WithLabelValues(string(b), operation).Observe(duration.Seconds())
	if err != nil {
		m.BrokerErrors.WithLabelValues(string(b), operation, errorKind(err)).Inc()
	}
}

// ObserveTokenRefresh records one refresh attempt
func (m *Metrics) ObserveTokenRefresh(b domain.Broker, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.TokenRefreshes.WithLabelValues(string(b), result).Inc()
}

// ObserveCycle records a finished loop cycle and its per-account outcomes
func (m *Metrics) ObserveCycle(loop string, succeeded, failed int) {
	m.LoopCycles.WithLabelValues(loop).Inc()
	m.LoopAccountResults.WithLabelValues(loop, ResultSuccess).Add(float64(succeeded))
	m.LoopAccountResults.WithLabelValues(loop, ResultFailure).Add(float64(failed))
}

// ObserveRestart records a loop restarted after a panic
func (m *Metrics) ObserveRestart(loop string) {
	m.LoopRestarts.WithLabelValues(loop).Inc()
}

func errorKind(err error) string {
	var authErr *domain.AuthError
	var fetchErr *domain.FetchError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &fetchErr):
		if fetchErr.StatusCode == 0 && fetchErr.Code != "" {
			return "business"
		}
		return "fetch"
	default:
		return "other"
	}
}
