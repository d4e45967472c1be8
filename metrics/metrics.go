// Package metrics exposes Prometheus metrics for the REST API and the relay.
//
// Every collector lives on a private registry so that tests and multiple
// servers in one process never collide on the default registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tunehub"

// Metrics holds the application collectors.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRequestCounter counts API requests.
	// Labels: method, route (mux path template), status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures API latency in seconds.
	// Labels: method, route
	HTTPRequestDuration *prometheus.HistogramVec

	// RelayPresenceEvents counts presence transitions applied by the relay.
	// Labels: kind (online|offline|activity)
	RelayPresenceEvents *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests by method, route and status code",
			},
			[]string{"method", "route", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		),

		RelayPresenceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_presence_events_total",
				Help:      "Presence transitions applied by the socket relay",
			},
			[]string{"kind"},
		),
	}
}

// TrackOnline exports the live relay connection count read from online.
func (m *Metrics) TrackOnline(online func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_online_users",
			Help:      "Users currently connected to the socket relay",
		},
		func() float64 { return float64(online()) },
	))
}

// ObserveRequest records one finished API request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Online, Offline and ActivityChanged make Metrics a relay observer.
func (m *Metrics) Online(_ context.Context, _ string) {
	m.RelayPresenceEvents.WithLabelValues("online").Inc()
}

func (m *Metrics) Offline(_ context.Context, _ string) {
	m.RelayPresenceEvents.WithLabelValues("offline").Inc()
}

func (m *Metrics) ActivityChanged(_ context.Context, _, _ string) {
	m.RelayPresenceEvents.WithLabelValues("activity").Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
