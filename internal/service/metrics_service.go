package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry. A nil *MetricsService is
// valid and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	scanOutcomes    *prometheus.CounterVec
	marks           *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	activeCameras   prometheus.Gauge
	reportJobs      *prometheus.CounterVec
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "record_store_operation_seconds",
			Help:    "Latency of record store operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation", "collection"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "record_store_errors_total",
			Help: "Record store operations that returned an error",
		}, []string{"operation", "collection"}),
		scanOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_scan_outcomes_total",
			Help: "QR scan attempts by outcome",
		}, []string{"outcome"}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Attendance marks recorded by status and source",
		}, []string{"status", "source"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications written by type and audience",
		}, []string{"type", "target_role"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_sessions_active",
			Help: "Attendance sessions currently open",
		}),
		activeCameras: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_scan_loops_active",
			Help: "Camera scan loops currently running",
		}),
		reportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_jobs_total",
			Help: "Attendance export jobs by final status",
		}, []string{"status"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.storeDuration, m.storeErrors,
		m.scanOutcomes, m.marks, m.notifications, m.activeSessions,
		m.activeCameras, m.reportJobs, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveStoreOperation satisfies store.Observer.
func (m *MetricsService) ObserveStoreOperation(operation, collection string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation, collection).Observe(took.Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(operation, collection).Inc()
	}
}

func (m *MetricsService) RecordScan(outcome string) {
	if m == nil {
		return
	}
	m.scanOutcomes.WithLabelValues(outcome).Inc()
}

func (m *MetricsService) RecordMark(status, source string) {
	if m == nil {
		return
	}
	m.marks.WithLabelValues(status, source).Inc()
}

func (m *MetricsService) RecordNotifications(kind, targetRole string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(kind, targetRole).Add(float64(n))
}

func (m *MetricsService) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *MetricsService) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *MetricsService) CameraStarted() {
	if m != nil {
		m.activeCameras.Inc()
	}
}

func (m *MetricsService) CameraStopped() {
	if m != nil {
		m.activeCameras.Dec()
	}
}

func (m *MetricsService) RecordReportJob(status string) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(status).Inc()
}
