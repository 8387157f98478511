package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the lifecycle engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	transitionsTotal *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	sweepForced      prometheus.Counter
	sweepDuration    prometheus.Histogram
	deliveriesTotal  *prometheus.CounterVec
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

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Status transitions applied to applications",
	}, []string{"to_status", "forced"})

	escalationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_escalations_total",
		Help: "Escalation reopens triggered by citizen feedback",
	}, []string{"level"})

	sweepForced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_forced_approvals_total",
		Help: "Applications auto-approved by the deadline sweeper",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_pass_duration_seconds",
		Help:    "Duration of one sweeper pass",
		Buckets: prometheus.DefBuckets,
	})

	deliveriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification delivery attempts by outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionsTotal,
		escalationsTotal, sweepForced, sweepDuration, deliveriesTotal, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionsTotal: transitionsTotal,
		escalationsTotal: escalationsTotal,
		sweepForced:      sweepForced,
		sweepDuration:    sweepDuration,
		deliveriesTotal:  deliveriesTotal,
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

// ObserveTransition counts a committed status change. Forced marks
// sweeper-driven auto-approvals.
func (m *MetricsService) ObserveTransition(to models.ApplicationStatus, forced bool) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to), fmt.Sprintf("%t", forced)).Inc()
}

// ObserveEscalation counts a feedback-driven reopen at the level it reached.
func (m *MetricsService) ObserveEscalation(level int) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(fmt.Sprintf("%d", level)).Inc()
}

// ObserveSweep records the outcome of one sweeper pass.
func (m *MetricsService) ObserveSweep(forced int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepForced.Add(float64(forced))
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveDelivery counts a notification delivery attempt.
func (m *MetricsService) ObserveDelivery(notificationType models.NotificationType, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.deliveriesTotal.WithLabelValues(string(notificationType), outcome).Inc()
}
