// Package telemetry owns the Prometheus collectors exported at /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escapeboard"

// Metrics groups every collector on a private registry so tests and multiple
// servers in one process do not collide on the global one.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authRejections  *prometheus.CounterVec
	lockWait        prometheus.Histogram
	lockTimeouts    prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests"},
			[]string{"route", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "auth_rejections_total", Help: "Rejected credentials by reason"},
			[]string{"reason"},
		),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_lock_wait_seconds",
			Help:      "Time spent waiting for the store lock",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		lockTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "store_lock_timeouts_total", Help: "Store lock acquisitions that timed out"},
		),
	}
	metrics.registry.MustRegister(
		metrics.requestsTotal,
		metrics.requestDuration,
		metrics.authRejections,
		metrics.lockWait,
		metrics.lockTimeouts,
	)
	return metrics
}

// Handler serves the registry in the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}

func (metrics *Metrics) ObserveRequest(route string, method string, statusCode int, elapsed time.Duration) {
	metrics.requestsTotal.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	metrics.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (metrics *Metrics) AuthRejected(reason string) {
	metrics.authRejections.WithLabelValues(reason).Inc()
}

func (metrics *Metrics) LockAcquired(wait time.Duration) {
	metrics.lockWait.Observe(wait.Seconds())
}

func (metrics *Metrics) LockTimedOut(wait time.Duration) {
	metrics.lockWait.Observe(wait.Seconds())
	metrics.lockTimeouts.Inc()
}
