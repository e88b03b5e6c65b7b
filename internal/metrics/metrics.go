// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Compensation outcomes.
const (
	CompensationDeleted = "deleted"
	CompensationFailed  = "failed"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	dependencyDuration  *prometheus.HistogramVec
	compensationsTotal  *prometheus.CounterVec
	readinessStatus     *prometheus.GaugeVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userprofile_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userprofile_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		dependencyDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userprofile_dependency_duration_seconds",
				Help:    "Duration of calls to Key Vault, the database and blob storage",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"service", "operation", "outcome"},
		)

		compensationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userprofile_compensations_total",
				Help: "Blob deletions attempted after a failed profile insert",
			},
			[]string{"result"},
		)

		readinessStatus = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "userprofile_readiness_status",
				Help: "Current readiness check status (1=ready, 0=not ready)",
			},
			[]string{"check"},
		)

		metricsRegistered = true
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// RecordRequest records one served HTTP request.
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	if !metricsRegistered {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveDependency records the duration of a call that started at start.
func ObserveDependency(service, operation string, start time.Time, err error) {
	if !metricsRegistered {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	dependencyDuration.WithLabelValues(service, operation, outcome).Observe(time.Since(start).Seconds())
}

// RecordCompensation counts a rollback delete by its result.
func RecordCompensation(result string) {
	if !metricsRegistered {
		return
	}
	compensationsTotal.WithLabelValues(result).Inc()
}

// RecordReadiness sets the readiness gauge for a check.
func RecordReadiness(check string, ready bool) {
	if !metricsRegistered {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	readinessStatus.WithLabelValues(check).Set(value)
}

// GetCompensationsTotal returns the compensation counter for testing.
func GetCompensationsTotal() *prometheus.CounterVec {
	return compensationsTotal
}

// GetHTTPRequestsTotal returns the request counter for testing.
func GetHTTPRequestsTotal() *prometheus.CounterVec {
	return httpRequestsTotal
}

// GetReadinessStatus returns the readiness gauge for testing.
func GetReadinessStatus() *prometheus.GaugeVec {
	return readinessStatus
}
