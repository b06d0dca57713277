package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sweepDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics holds all Prometheus metric instruments for the chatbot backend.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsCreatedTotal     prometheus.Counter
	SessionsClosedTotal      prometheus.Counter
	SessionExpiriesTotal     prometheus.Counter
	SessionLookupsTotal      *prometheus.CounterVec
	ActiveSessions           prometheus.Gauge
	SessionStoreRetriesTotal prometheus.Counter

	// Cleanup metrics. CleanupRunsTotal increments once per run so
	// monitoring can alert on zero-deletion runs separately from error runs.
	SessionsCleanedTotal prometheus.Counter
	CleanupRunsTotal     prometheus.Counter
	CleanupErrorsTotal   prometheus.Counter
	CleanupDuration      prometheus.Histogram

	// Workflow metrics
	WorkflowStartsTotal      *prometheus.CounterVec
	WorkflowAdvancesTotal    *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowCancelsTotal     *prometheus.CounterVec
	WorkflowStepRejectsTotal *prometheus.CounterVec

	// Routing metrics
	IntentDetectionsTotal *prometheus.CounterVec
	DedupeHitsTotal       prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aduan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_sessions_created_total",
			Help: "Total number of sessions created.",
		}),
		SessionsClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_sessions_closed_total",
			Help: "Total number of sessions explicitly closed.",
		}),
		SessionExpiriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_session_expiries_total",
			Help: "Total number of sessions detected expired on read.",
		}),
		SessionLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_session_lookups_total",
			Help: "Total number of session lookups by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aduan_active_sessions",
			Help: "Number of sessions currently in ACTIVE status.",
		}),
		SessionStoreRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_session_store_retries_total",
			Help: "Total number of retried session store writes.",
		}),

		SessionsCleanedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_sessions_cleaned_total",
			Help: "Total number of session records deleted by the sweeper.",
		}),
		CleanupRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_cleanup_runs_total",
			Help: "Total number of cleanup sweep executions.",
		}),
		CleanupErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_cleanup_errors_total",
			Help: "Total number of aborted cleanup sweep runs.",
		}),
		CleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aduan_cleanup_duration_seconds",
			Help:    "Duration of cleanup sweep runs in seconds.",
			Buckets: sweepDurationBuckets,
		}),

		WorkflowStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_workflow_starts_total",
			Help: "Total number of workflows started.",
		}, []string{"workflow_type"}),
		WorkflowAdvancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_workflow_advances_total",
			Help: "Total number of successful workflow step advances.",
		}, []string{"workflow_type"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_workflow_completions_total",
			Help: "Total number of workflows completed with a ticket.",
		}, []string{"workflow_type"}),
		WorkflowCancelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_workflow_cancels_total",
			Help: "Total number of workflows cancelled.",
		}, []string{"workflow_type"}),
		WorkflowStepRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_workflow_step_rejects_total",
			Help: "Total number of out-of-sequence workflow actions rejected.",
		}, []string{"workflow_type"}),

		IntentDetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aduan_intent_detections_total",
			Help: "Total number of intent classifications by result.",
		}, []string{"intent"}),
		DedupeHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aduan_dedupe_hits_total",
			Help: "Total number of inbound messages dropped as redeliveries.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsCreatedTotal,
		m.SessionsClosedTotal,
		m.SessionExpiriesTotal,
		m.SessionLookupsTotal,
		m.ActiveSessions,
		m.SessionStoreRetriesTotal,
		m.SessionsCleanedTotal,
		m.CleanupRunsTotal,
		m.CleanupErrorsTotal,
		m.CleanupDuration,
		m.WorkflowStartsTotal,
		m.WorkflowAdvancesTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowCancelsTotal,
		m.WorkflowStepRejectsTotal,
		m.IntentDetectionsTotal,
		m.DedupeHitsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordSessionLookup records a session lookup by outcome.
func (m *Metrics) RecordSessionLookup(outcome string) {
	m.SessionLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordCleanupRun records the outcome of one sweep run.
func (m *Metrics) RecordCleanupRun(cleaned int, duration time.Duration, failed bool) {
	m.CleanupRunsTotal.Inc()
	m.CleanupDuration.Observe(duration.Seconds())
	if failed {
		m.CleanupErrorsTotal.Inc()
		return
	}
	m.SessionsCleanedTotal.Add(float64(cleaned))
}

// RecordIntentDetection records an intent classification.
func (m *Metrics) RecordIntentDetection(intent string) {
	m.IntentDetectionsTotal.WithLabelValues(intent).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics
// using chi's route pattern (not the actual URL path) to avoid label
// cardinality explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
