// Package metrics exposes civicpulse operational and domain metrics to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewbaird/civicpulse/internal/event"
	"github.com/matthewbaird/civicpulse/internal/types"
)

const namespace = "civicpulse"

// Collector holds the counters fed by the desk, the event bus, the HTTP
// layer and the live feed.
type Collector struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	eventsTotal      *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	feedClients prometheus.Gauge
}

// NewCollector registers every metric on a fresh registry, along with the Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		commandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by operation and outcome code",
		}, []string{"op", "outcome"}),
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent applying a command after its simulated latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published, by type and weight",
		}, []string{"event_type", "weight"}),
		alertsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Escalations absorbed by an alert already open for the same fault",
		}, []string{"issue_type"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected live feed clients",
		}),
	}
}

// Registry exposes the underlying registry, e.g. for extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CommandCompleted records one desk command.
func (c *Collector) CommandCompleted(op string, elapsed time.Duration, err error) {
	c.commandsTotal.WithLabelValues(op, outcome(err)).Inc()
	c.commandDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AlertSuppressed counts a duplicate escalation.
func (c *Collector) AlertSuppressed(issueType types.IssueType) {
	c.alertsSuppressed.WithLabelValues(string(issueType)).Inc()
}

// HandleEvent counts domain events. It is subscribed to the event bus.
func (c *Collector) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.eventsTotal.WithLabelValues(evt.EventType, evt.Weight).Inc()
	return nil
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, http.StatusText(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetFeedClients reports the live feed's connection count.
func (c *Collector) SetFeedClients(n int) { c.feedClients.Set(float64(n)) }

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var coded types.Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "abandoned"
	}
	return "error"
}
