package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the pid API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	remoteCalls     *prometheus.CounterVec
	remoteLatency   prometheus.Observer
	pidCollisions   prometheus.Counter
}

// NewMetricsService registers the collectors.
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

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pid_registrations_total",
		Help: "Registration attempts by outcome",
	}, []string{"outcome"})

	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pid_remote_calls_total",
		Help: "Calls to the central pid authority by result",
	}, []string{"result"})

	remoteLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pid_remote_latency_seconds",
		Help:    "Latency of central pid authority calls",
		Buckets: prometheus.DefBuckets,
	})

	pidCollisions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pid_generation_collisions_total",
		Help: "Generated pid candidates rejected as already in use",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, registrations, remoteCalls, remoteLatency, pidCollisions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		registrations:   registrations,
		remoteCalls:     remoteCalls,
		remoteLatency:   remoteLatency,
		pidCollisions:   pidCollisions,
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

// ObserveRegistration counts one registration attempt by outcome
// (created, updated or an error code).
func (m *MetricsService) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// ObserveRemoteCall records one central authority round trip.
func (m *MetricsService) ObserveRemoteCall(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(result).Inc()
	m.remoteLatency.Observe(duration.Seconds())
}

// ObservePidCollision counts a generated candidate lost to an existing pid.
func (m *MetricsService) ObservePidCollision() {
	if m == nil {
		return
	}
	m.pidCollisions.Inc()
}
