package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	expiryMetricsOnce sync.Once
	expiryRegistry    *ExpiryMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and HTTP status.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bounty",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests rejected before dispatch segmented by reason.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons are stable strings
// such as "rate_limit" or "replay".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ExpiryMetrics tracks the background expiry scan.
type ExpiryMetrics struct {
	scans    prometheus.Counter
	open     prometheus.Gauge
	expired  prometheus.Gauge
	duration prometheus.Histogram
}

// Expiry returns the singleton registry for the expiry watcher.
func Expiry() *ExpiryMetrics {
	expiryMetricsOnce.Do(func() {
		expiryRegistry = &ExpiryMetrics{
			scans: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bounty",
				Subsystem: "expiry",
				Name:      "scans_total",
				Help:      "Number of completed expiry scans.",
			}),
			open: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bounty",
				Subsystem: "expiry",
				Name:      "open_requests",
				Help:      "Funded requests still holding a locked asset, across both variants.",
			}),
			expired: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bounty",
				Subsystem: "expiry",
				Name:      "reclaimable_requests",
				Help:      "Open requests whose deadline has passed and which the requester may reclaim.",
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "bounty",
				Subsystem: "expiry",
				Name:      "scan_duration_seconds",
				Help:      "Latency distribution of expiry scans.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(expiryRegistry.scans, expiryRegistry.open, expiryRegistry.expired, expiryRegistry.duration)
	})
	return expiryRegistry
}

// RecordScan stores the result of one scan.
func (m *ExpiryMetrics) RecordScan(open, reclaimable int, d time.Duration) {
	if m == nil {
		return
	}
	m.scans.Inc()
	m.open.Set(float64(open))
	m.expired.Set(float64(reclaimable))
	m.duration.Observe(d.Seconds())
}
