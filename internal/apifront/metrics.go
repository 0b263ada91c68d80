package apifront

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the Prometheus metrics for the API front, adapted
// from the teacher's interfaces/http.MetricsRegistry: the histogram/
// counter shape is kept, the label set and names are generalized from
// pipeline steps to HTTP routes.
type MetricsRegistry struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec

	registry *prometheus.Registry

	startedAt time.Time

	mu           sync.Mutex
	requestCount int64
	errorCount   int64
	totalLatency time.Duration
}

func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goldrouter_http_request_duration_seconds",
				Help:    "Duration of API front requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "method", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goldrouter_http_requests_total",
				Help: "Total API front requests",
			},
			[]string{"route", "method", "status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goldrouter_http_errors_total",
				Help: "Total API front error responses by code",
			},
			[]string{"code"},
		),
		startedAt: time.Now(),
	}
	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(r.RequestDuration, r.RequestsTotal, r.ErrorsTotal)
	return r
}

func (r *MetricsRegistry) RecordRequest(route, method, status string, duration time.Duration) {
	r.RequestDuration.WithLabelValues(route, method, status).Observe(duration.Seconds())
	r.RequestsTotal.WithLabelValues(route, method, status).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount++
	r.totalLatency += duration
}

func (r *MetricsRegistry) RecordError(code string) {
	r.ErrorsTotal.WithLabelValues(code).Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
}

// Summary produces the GET /metrics JSON body (spec §4.5 "count, avg
// latency, error rate, uptime").
func (r *MetricsRegistry) Summary() MetricsResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	avgLatency := 0.0
	errRate := 0.0
	if r.requestCount > 0 {
		avgLatency = float64(r.totalLatency.Milliseconds()) / float64(r.requestCount)
		errRate = float64(r.errorCount) / float64(r.requestCount)
	}
	return MetricsResponse{
		RequestCount:  r.requestCount,
		AvgLatencyMs:  avgLatency,
		ErrorRate:     errRate,
		UptimeSeconds: time.Since(r.startedAt).Seconds(),
	}
}

// PrometheusHandler exposes the raw Prometheus exposition format.
func (r *MetricsRegistry) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
