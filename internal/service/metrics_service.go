package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/asterism/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for the stats endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	linkTotal       *prometheus.CounterVec
	pushBytes       prometheus.Histogram
	pushDuration    *prometheus.HistogramVec
	broadcastTotal  *prometheus.CounterVec
	watchers        prometheus.Gauge
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount   uint64
	pushCount      uint64
	pushFailed     uint64
	delivered      uint64
	linkResolved   uint64
	linkTimeouts   uint64
	watcherCount   int64
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

	linkTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asterism_link_total",
		Help: "Device link events by outcome",
	}, []string{"outcome"})

	pushBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "asterism_push_bytes",
		Help:    "Size of pushed file contents",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})

	pushDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asterism_push_duration_seconds",
		Help:    "Time spent persisting a push",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	broadcastTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asterism_broadcast_deliveries_total",
		Help: "Change events handed to watchers",
	}, []string{"result"})

	watchers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "asterism_watchers",
		Help: "Live watch subscriptions",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
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

	registry.MustRegister(requestDuration, requestTotal, linkTotal, pushBytes, pushDuration, broadcastTotal, watchers, cacheLatency, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		linkTotal:       linkTotal,
		pushBytes:       pushBytes,
		pushDuration:    pushDuration,
		broadcastTotal:  broadcastTotal,
		watchers:        watchers,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordLink counts a link lifecycle event.
func (m *MetricsService) RecordLink(outcome string) {
	if m == nil {
		return
	}
	m.linkTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case LinkOutcomeResolved:
		atomic.AddUint64(&m.linkResolved, 1)
	case LinkOutcomeTimeout:
		atomic.AddUint64(&m.linkTimeouts, 1)
	}
}

// ObservePush records one push attempt.
func (m *MetricsService) ObservePush(bytes int, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
		atomic.AddUint64(&m.pushFailed, 1)
	}
	m.pushBytes.Observe(float64(bytes))
	m.pushDuration.WithLabelValues(result).Observe(duration.Seconds())
	atomic.AddUint64(&m.pushCount, 1)
}

// ObserveBroadcast records the fan-out of one change event.
func (m *MetricsService) ObserveBroadcast(delivered, failed int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.broadcastTotal.WithLabelValues("delivered").Add(float64(delivered))
		atomic.AddUint64(&m.delivered, uint64(delivered))
	}
	if failed > 0 {
		m.broadcastTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// SetWatchers sets the number of live watch subscriptions.
func (m *MetricsService) SetWatchers(count int) {
	if m == nil {
		return
	}
	m.watchers.Set(float64(count))
	atomic.StoreInt64(&m.watcherCount, int64(count))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}

// Snapshot returns aggregated counters suitable for the stats endpoint.
func (m *MetricsService) Snapshot() models.ServerStats {
	if m == nil {
		return models.ServerStats{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	return models.ServerStats{
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		PushesTotal:       atomic.LoadUint64(&m.pushCount),
		PushesFailed:      atomic.LoadUint64(&m.pushFailed),
		DeliveriesTotal:   atomic.LoadUint64(&m.delivered),
		LinksResolved:     atomic.LoadUint64(&m.linkResolved),
		LinkTimeouts:      atomic.LoadUint64(&m.linkTimeouts),
		Watchers:          int(atomic.LoadInt64(&m.watcherCount)),
		StaffCacheHitRate: cacheRatio,
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
