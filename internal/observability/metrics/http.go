package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	workflowsTotal    *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	cacheHitsTotal    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	stageUnitsTotal   *prometheus.CounterVec
	breakerOpenGauge  *prometheus.GaugeVec
	breakerTripsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docflow",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	workflowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "workflow",
			Name:      "processed_total",
			Help:      "Total completed workflows by outcome.",
		},
		[]string{"service", "outcome"},
	)
	workflowDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "End-to-end workflow duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "workflow",
			Name:      "cache_hits_total",
			Help:      "Total workflows served from the idempotency cache.",
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Stage invocation duration in seconds by stage and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "status"},
	)
	stageUnitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "stage",
			Name:      "units_consumed_total",
			Help:      "Total processing units consumed per stage.",
		},
		[]string{"service", "stage"},
	)
	breakerOpenGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docflow",
			Subsystem: "breaker",
			Name:      "open",
			Help:      "Whether the stage circuit breaker is open (1) or closed (0).",
		},
		[]string{"service", "stage"},
	)
	breakerTripsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total circuit breaker open transitions per stage.",
		},
		[]string{"service", "stage"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		workflowsTotal,
		workflowDuration,
		cacheHitsTotal,
		stageDuration,
		stageUnitsTotal,
		breakerOpenGauge,
		breakerTripsTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		workflowsTotal:    workflowsTotal,
		workflowDuration:  workflowDuration,
		cacheHitsTotal:    cacheHitsTotal,
		stageDuration:     stageDuration,
		stageUnitsTotal:   stageUnitsTotal,
		breakerOpenGauge:  breakerOpenGauge,
		breakerTripsTotal: breakerTripsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/workflows/"):
		return "/v1/workflows/{workflow_id}"
	case strings.HasPrefix(path, "/v1/breakers/"):
		return "/v1/breakers/{stage}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordWorkflow(service, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.workflowsTotal.WithLabelValues(service, outcome).Inc()
	m.workflowDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordCacheHit(service string) {
	m.cacheHitsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordStage(service, stage, status string, duration time.Duration, units int64) {
	m.stageDuration.WithLabelValues(service, stage, status).Observe(duration.Seconds())
	if units > 0 {
		m.stageUnitsTotal.WithLabelValues(service, stage).Add(float64(units))
	}
}

func (m *HTTPServerMetrics) SetBreakerOpen(service, stage string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	m.breakerOpenGauge.WithLabelValues(service, stage).Set(value)
}

func (m *HTTPServerMetrics) RecordBreakerTrip(service, stage string) {
	m.breakerTripsTotal.WithLabelValues(service, stage).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
