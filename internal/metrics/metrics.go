// Package metrics exposes review workflow counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/raga-review/internal/review"
)

// Namespace prefixes every metric name.
const Namespace = "raga_review"

// Collector holds the review workflow metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Decisions     *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	pendingSource func() int
}

// NewCollector creates and registers the workflow metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "decisions_total",
				Help:      "Review queue events by type.",
			},
			[]string{"type"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "notification_deliveries_total",
				Help:      "Notification delivery attempts by topic, sink and outcome.",
			},
			[]string{"topic", "sink", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	registry.MustRegister(c.Decisions, c.Deliveries, c.HTTPRequests, c.HTTPDuration)
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_summaries",
			Help:      "Summaries awaiting a first review decision.",
		},
		func() float64 {
			if c.pendingSource == nil {
				return 0
			}
			return float64(c.pendingSource())
		},
	))
	return c
}

// TrackPending wires the pending gauge to a live count, typically
// Store.PendingCount.
func (c *Collector) TrackPending(source func() int) {
	c.pendingSource = source
}

// Publish satisfies review.Publisher.
func (c *Collector) Publish(evt review.Event) {
	c.Decisions.WithLabelValues(string(evt.Type)).Inc()
}

// RecordDelivery counts one notification delivery attempt.
func (c *Collector) RecordDelivery(topic, sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Deliveries.WithLabelValues(topic, sink, outcome).Inc()
}

// RecordHTTP counts one served request.
func (c *Collector) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry exposes the private registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
