// Package telemetry exposes the service's Prometheus metrics: HTTP latency,
// appointment transitions, real-time event delivery and pool usage.
package telemetry

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config names the metric namespace.
type Config struct {
	Namespace string
	// Runtime adds the Go and process collectors. Off in tests.
	Runtime bool
}

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Provider owns a private registry so several providers can coexist in one
// process (tests, mostly).
type Provider struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	transitions     *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	dbConns         *prometheus.GaugeVec
}

func NewProvider(cfg Config) *Provider {
	ns := cfg.Namespace
	if ns == "" {
		ns = "agenda"
	}

	p := &Provider{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "route", "status"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_active_requests",
			Help:      "Requests currently being served.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cita_transitions_total",
			Help:      "Appointment lifecycle actions by outcome.",
		}, []string{"action", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "realtime_events_published_total",
			Help:      "Real-time events delivered to at least one subscriber.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "realtime_events_dropped_total",
			Help:      "Real-time frames skipped because a subscriber buffer was full.",
		}, []string{"type"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		dbConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state.",
		}, []string{"state"}),
	}

	p.registry.MustRegister(
		p.requestDuration,
		p.activeRequests,
		p.transitions,
		p.eventsPublished,
		p.eventsDropped,
		p.wsConnections,
		p.dbConns,
	)
	if cfg.Runtime {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// RecordTransition counts one lifecycle action ("crear", "asignar", ...)
// with its outcome ("ok" or an error kind).
func (p *Provider) RecordTransition(action, outcome string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(action, outcome).Inc()
}

// EventPublished counts an event delivered to a room with subscribers.
func (p *Provider) EventPublished(eventType string) {
	if p == nil {
		return
	}
	p.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped counts a frame a slow subscriber did not receive.
func (p *Provider) EventDropped(eventType string) {
	if p == nil {
		return
	}
	p.eventsDropped.WithLabelValues(eventType).Inc()
}

// ConnectionOpened and ConnectionClosed track live WebSocket connections.
func (p *Provider) ConnectionOpened() {
	if p == nil {
		return
	}
	p.wsConnections.Inc()
}

func (p *Provider) ConnectionClosed() {
	if p == nil {
		return
	}
	p.wsConnections.Dec()
}

// ObservePool copies pool statistics into gauges.
func (p *Provider) ObservePool(stat *pgxpool.Stat) {
	if p == nil || stat == nil {
		return
	}
	p.dbConns.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	p.dbConns.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	p.dbConns.WithLabelValues("total").Set(float64(stat.TotalConns()))
}

// MetricsMiddleware records request latency labelled by route pattern.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			start := time.Now()

			err := next(c)

			p.activeRequests.Dec()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			p.requestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
