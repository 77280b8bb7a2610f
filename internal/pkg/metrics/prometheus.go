package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Execution Metrics
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_executions_total",
			Help: "Total number of finished workflow executions",
		},
		[]string{"status", "trigger_type"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptflow_execution_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	ExecutionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptflow_executions_in_progress",
			Help: "Number of executions running on this worker",
		},
	)

	ExecutionsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptflow_executions_deferred_total",
			Help: "Executions requeued because the workspace concurrency limit was reached",
		},
	)

	// Node Metrics
	NodeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_node_attempts_total",
			Help: "Total number of node attempts",
		},
		[]string{"status"},
	)

	NodeAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scriptflow_node_attempt_duration_seconds",
			Help:    "Node attempt duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
	)

	// Trigger Metrics
	TriggerFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_trigger_fires_total",
			Help: "Total number of trigger fires",
		},
		[]string{"trigger_type", "result"},
	)

	// Queue Metrics
	QueueTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_queue_tasks_processed_total",
			Help: "Total number of tasks processed",
		},
		[]string{"task_type", "status"},
	)

	// Rate Limiting Metrics
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"scope"},
	)
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records HTTP metrics labelled by chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Collector adapts the package-level metrics to the execution engine.
type Collector struct{}

func (Collector) ExecutionStarted() {
	ExecutionsInProgress.Inc()
}

func (Collector) ExecutionFinished(status, triggerType string, duration time.Duration) {
	ExecutionsInProgress.Dec()
	ExecutionsTotal.WithLabelValues(status, triggerType).Inc()
	ExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (Collector) ExecutionDeferred() {
	ExecutionsDeferred.Inc()
}

func (Collector) NodeAttempt(status string, duration time.Duration) {
	NodeAttemptsTotal.WithLabelValues(status).Inc()
	NodeAttemptDuration.Observe(duration.Seconds())
}

// RecordTriggerFire records a trigger fire; result is "queued" or the error code.
func RecordTriggerFire(triggerType, result string) {
	TriggerFiresTotal.WithLabelValues(triggerType, result).Inc()
}

// RecordTask records a processed queue task.
func RecordTask(taskType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QueueTasksProcessed.WithLabelValues(taskType, status).Inc()
}

// RecordRateLimitHit records rate limit hits
func RecordRateLimitHit(scope string) {
	RateLimitHitsTotal.WithLabelValues(scope).Inc()
}
