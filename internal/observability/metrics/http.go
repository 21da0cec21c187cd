package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoice_dashboard"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal        *prometheus.CounterVec
	uploadDuration      *prometheus.HistogramVec
	transitionsTotal    *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	cacheInvalidations  *prometheus.CounterVec
	changeEventsTotal   *prometheus.CounterVec
	eventSubscribers    prometheus.Gauge
	reprocessQueueTotal *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Total invoice uploads by outcome.",
		},
		[]string{"service", "outcome"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Upload and extraction duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoice",
			Name:      "transitions_total",
			Help:      "Invoice status actions by result.",
		},
		[]string{"service", "action", "result"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by scope and outcome.",
		},
		[]string{"service", "scope", "outcome"},
	)
	cacheInvalidations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Query cache entries removed by invalidation.",
		},
		[]string{"service", "scope"},
	)
	changeEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changefeed",
			Name:      "events_total",
			Help:      "Invoice change notifications received by operation.",
		},
		[]string{"service", "op"},
	)
	eventSubscribers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "changefeed",
			Name:      "subscribers",
			Help:      "Connected server-sent event streams.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	reprocessQueueTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "reprocess_requests_total",
			Help:      "Re-extraction requests published by result.",
		},
		[]string{"service", "result"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried remote calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadDuration,
		transitionsTotal,
		cacheLookupsTotal,
		cacheInvalidations,
		changeEventsTotal,
		eventSubscribers,
		reprocessQueueTotal,
		retriesTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		uploadsTotal:        uploadsTotal,
		uploadDuration:      uploadDuration,
		transitionsTotal:    transitionsTotal,
		cacheLookupsTotal:   cacheLookupsTotal,
		cacheInvalidations:  cacheInvalidations,
		changeEventsTotal:   changeEventsTotal,
		eventSubscribers:    eventSubscribers,
		reprocessQueueTotal: reprocessQueueTotal,
		retriesTotal:        retriesTotal,
		breakerState:        breakerState,
	}
}

// Registry lets another process endpoint expose these collectors too.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware must be mounted inside the chi router so the matched route
// pattern is available as the path label.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded for requests that never
// matched a route.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/invoices/"):
		return "/v1/invoices/{id}"
	case strings.HasPrefix(path, "/invoices/"):
		return "/invoices/{id}"
	case strings.HasPrefix(path, "/files/"):
		return "/files/{key}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
	m.uploadDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordTransition(action, result string) {
	m.transitionsTotal.WithLabelValues(m.service, action, result).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(scope, outcome string) {
	m.cacheLookupsTotal.WithLabelValues(m.service, scope, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordCacheInvalidation(scope string, removed int) {
	if removed <= 0 {
		return
	}
	m.cacheInvalidations.WithLabelValues(m.service, scope).Add(float64(removed))
}

func (m *HTTPServerMetrics) RecordChangeEvent(op string) {
	m.changeEventsTotal.WithLabelValues(m.service, op).Inc()
}

func (m *HTTPServerMetrics) SubscriberConnected() {
	m.eventSubscribers.Inc()
}

func (m *HTTPServerMetrics) SubscriberDisconnected() {
	m.eventSubscribers.Dec()
}

func (m *HTTPServerMetrics) RecordReprocessRequest(err error) {
	result := "published"
	if err != nil {
		result = "error"
	}
	m.reprocessQueueTotal.WithLabelValues(m.service, result).Inc()
}

func (m *HTTPServerMetrics) RecordRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) RecordBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
