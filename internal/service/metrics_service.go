package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface and
// the background compliance passes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	scanVerdicts    *prometheus.CounterVec
	retentionOps    *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	passFailures    *prometheus.CounterVec
	reconcileIssues *prometheus.CounterVec
	gatewayUploads  *prometheus.CounterVec
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

	scanVerdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_scan_verdicts_total",
		Help: "Terminal verdicts recorded by the antivirus scan worker",
	}, []string{"verdict"})

	retentionOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_actions_total",
		Help: "Retention queue operations by category, action and outcome",
	}, []string{"category", "action", "outcome"})

	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "background_pass_duration_seconds",
		Help:    "Duration of background passes in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"pass"})

	passFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_pass_item_failures_total",
		Help: "Items left untouched by a background pass because of an error",
	}, []string{"pass"})

	reconcileIssues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_issues_total",
		Help: "Storage and database inconsistencies found by reconciliation",
	}, []string{"type"})

	gatewayUploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_uploads_total",
		Help: "Upload gateway requests by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, scanVerdicts, retentionOps, passDuration, passFailures, reconcileIssues, gatewayUploads, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		scanVerdicts:    scanVerdicts,
		retentionOps:    retentionOps,
		passDuration:    passDuration,
		passFailures:    passFailures,
		reconcileIssues: reconcileIssues,
		gatewayUploads:  gatewayUploads,
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

// Registry exposes the underlying registry (used by tests).
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
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

// RecordScanVerdict counts one terminal scan verdict.
func (m *MetricsService) RecordScanVerdict(verdict string) {
	if m == nil {
		return
	}
	m.scanVerdicts.WithLabelValues(verdict).Inc()
}

// RecordRetentionAction counts one retention operation.
func (m *MetricsService) RecordRetentionAction(category, action, outcome string) {
	if m == nil {
		return
	}
	m.retentionOps.WithLabelValues(category, action, outcome).Inc()
}

// ObservePass records the duration and failed item count of a background pass.
func (m *MetricsService) ObservePass(pass string, duration time.Duration, failed int) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(duration.Seconds())
	if failed > 0 {
		m.passFailures.WithLabelValues(pass).Add(float64(failed))
	}
}

// RecordReconcileIssue counts one inconsistency.
func (m *MetricsService) RecordReconcileIssue(issueType string) {
	if m == nil {
		return
	}
	m.reconcileIssues.WithLabelValues(issueType).Inc()
}

// RecordGatewayUpload counts one gateway outcome.
func (m *MetricsService) RecordGatewayUpload(outcome string) {
	if m == nil {
		return
	}
	m.gatewayUploads.WithLabelValues(outcome).Inc()
}
