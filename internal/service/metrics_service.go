package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway:
// HTTP traffic, autosave outcomes, lock activity, upstream latency and the
// record cache. All observe methods tolerate a nil receiver so callers can
// run without metrics wired.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	autosaveTotal    *prometheus.CounterVec
	autosaveDuration prometheus.Observer
	lockTransitions  *prometheus.CounterVec
	lockDenied       prometheus.Counter
	upstreamDuration *prometheus.HistogramVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
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

	autosaveTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autosave_saves_total",
		Help: "Draft autosave attempts by outcome",
	}, []string{"result"})

	autosaveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autosave_save_duration_seconds",
		Help:    "Duration of draft autosave persist calls",
		Buckets: prometheus.DefBuckets,
	})

	lockTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lock_transitions_total",
		Help: "Observed record lock state transitions",
	}, []string{"state"})

	lockDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_denied_total",
		Help: "Mutations refused because the record was locked by another holder",
	})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Duration of calls to upstream LIMS services",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, autosaveTotal, autosaveDuration,
		lockTransitions, lockDenied, upstreamDuration,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		autosaveTotal:    autosaveTotal,
		autosaveDuration: autosaveDuration,
		lockTransitions:  lockTransitions,
		lockDenied:       lockDenied,
		upstreamDuration: upstreamDuration,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
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

// RegisterSessionGauge exposes the live intake session count. Called once at
// startup, after the session manager exists.
func (m *MetricsService) RegisterSessionGauge(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "open_sessions",
		Help: "Number of open intake sessions",
	}, func() float64 {
		return float64(count())
	}))
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

// ObserveAutosave records one autosave persist attempt.
func (m *MetricsService) ObserveAutosave(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "saved"
	if !ok {
		result = "failed"
	}
	m.autosaveTotal.WithLabelValues(result).Inc()
	m.autosaveDuration.Observe(duration.Seconds())
}

// ObserveLockTransition records a lock state change seen by a watcher.
func (m *MetricsService) ObserveLockTransition(locked bool) {
	if m == nil {
		return
	}
	state := "unlocked"
	if locked {
		state = "locked"
	}
	m.lockTransitions.WithLabelValues(state).Inc()
}

// ObserveLockDenied counts a mutation refused because another user holds the lock.
func (m *MetricsService) ObserveLockDenied() {
	if m == nil {
		return
	}
	m.lockDenied.Inc()
}

// ObserveUpstream records latency for a call to an upstream LIMS service.
// Status 0 means the service was unreachable.
func (m *MetricsService) ObserveUpstream(service, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(service, method, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
