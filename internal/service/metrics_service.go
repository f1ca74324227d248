package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the delivery pipeline and the cache.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	deliveriesTotal  prometheus.Counter
	passDuration     prometheus.Histogram
	passesTotal      *prometheus.CounterVec
	pendingSchedules prometheus.Gauge

	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheLatency  prometheus.Observer
	cacheWriteDur prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	deliveriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "announcement_deliveries_total",
		Help: "Total per-recipient deliveries recorded",
	})

	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "announcement_delivery_pass_duration_seconds",
		Help:    "Duration of full roster delivery passes",
		Buckets: prometheus.DefBuckets,
	})

	passesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "announcement_delivery_passes_total",
		Help: "Delivery passes by outcome",
	}, []string{"outcome"})

	pendingSchedules := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "announcement_pending_schedules",
		Help: "Armed timers not yet fired",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWriteDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, deliveriesTotal, passDuration,
		passesTotal, pendingSchedules, cacheHits, cacheMisses, cacheLatency, cacheWriteDur, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		deliveriesTotal:  deliveriesTotal,
		passDuration:     passDuration,
		passesTotal:      passesTotal,
		pendingSchedules: pendingSchedules,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		cacheLatency:     cacheLatency,
		cacheWriteDur:    cacheWriteDur,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordDelivery counts one per-recipient delivery.
func (m *MetricsService) RecordDelivery() {
	if m == nil {
		return
	}
	m.deliveriesTotal.Inc()
}

// ObserveDeliveryPass records the duration and outcome of a roster pass.
func (m *MetricsService) ObserveDeliveryPass(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.passesTotal.WithLabelValues(outcome).Inc()
}

// SetPendingSchedules tracks the number of armed, not-yet-fired timers.
func (m *MetricsService) SetPendingSchedules(n int) {
	if m == nil {
		return
	}
	m.pendingSchedules.Set(float64(n))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWriteDur.Observe(duration.Seconds())
}
