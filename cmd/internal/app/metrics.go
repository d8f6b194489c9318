package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry and the app's counters. It satisfies
// the bank API's metrics interface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	logins       *prometheus.CounterVec
	transfers    *prometheus.CounterVec
}

// NewMetrics builds a registry with runtime collectors plus the app counters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodbank",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodbank",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodbank",
			Name:      "transfers_total",
			Help:      "Transfer attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTransfer(outcome string) {
	m.transfers.WithLabelValues(outcome).Inc()
}

// WithHTTPMetrics counts every request by method and status class.
func WithHTTPMetrics(next http.Handler, m *Metrics) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)
		m.httpRequests.WithLabelValues(r.Method, statusClass(lrw.status)).Inc()
	})
}
