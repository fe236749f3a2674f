package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	throttles  *prometheus.CounterVec
	streams    prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording RPC activity
// per ledger module.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "RPC requests by module, method and HTTP status.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdp",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Ledger operations refused, by module and error class.",
			}, []string{"module", "class"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests or stream messages dropped by throttling policies.",
			}, []string{"module", "reason"}),
			streams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "rpc",
				Name:      "event_streams",
				Help:      "Open websocket event streams.",
			}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.latency,
			moduleRegistry.rejections,
			moduleRegistry.throttles,
			moduleRegistry.streams,
		)
	})
	return moduleRegistry
}

func orUnknown(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}

// Observe records a finished request. status is the HTTP status written.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module, method = orUnknown(module), orUnknown(method)
	m.requests.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordRejection counts a ledger error of the given class, such as
// "invariant" or "authorization".
func (m *moduleMetrics) RecordRejection(module, class string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(orUnknown(module), orUnknown(class)).Inc()
}

// RecordThrottle counts a throttled request. Reasons should be stable strings
// such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(orUnknown(module), reason).Inc()
}

// StreamOpened and StreamClosed track live event streams.
func (m *moduleMetrics) StreamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *moduleMetrics) StreamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}

// Requests exposes the request counter for scrapes in tests.
func (m *moduleMetrics) Requests() *prometheus.CounterVec { return m.requests }

// Rejections exposes the rejection counter for scrapes in tests.
func (m *moduleMetrics) Rejections() *prometheus.CounterVec { return m.rejections }

// Throttles exposes the throttle counter for scrapes in tests.
func (m *moduleMetrics) Throttles() *prometheus.CounterVec { return m.throttles }
