package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics captures scheduler health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	jobTimeouts    *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics()
	})
	return schedulerMetrics
}

func newSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostlify_scheduler_job_runs_total",
			Help: "Number of scheduler job runs.",
		}, []string{"job"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hostlify_scheduler_job_duration_seconds",
			Help:    "Scheduler job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostlify_scheduler_job_errors_total",
			Help: "Number of scheduler job errors.",
		}, []string{"job"}),
		jobTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostlify_scheduler_job_timeouts_total",
			Help: "Number of scheduler jobs that hit their deadline.",
		}, []string{"job"}),
		batchProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hostlify_scheduler_batch_processed_total",
			Help: "Items processed per scheduler job.",
		}, []string{"job"}),
		runLoopLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostlify_scheduler_run_loop_lag_seconds",
			Help:    "Delay between scheduled and actual run start.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) AddBatchProcessed(job string, n int) {
	if n <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(n))
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	m.runLoopLag.Observe(d.Seconds())
}

// HTTPMetrics instruments the gin engine.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = &HTTPMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "hostlify_http_requests_total",
				Help: "Number of HTTP requests.",
			}, []string{"method", "route", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "hostlify_http_request_duration_seconds",
				Help:    "HTTP request duration.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
		}
	})
	return httpMetrics
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// AutoscalingMetrics counts decisions and billing outcomes of the engine.
type AutoscalingMetrics struct {
	decisions *prometheus.CounterVec
	debits    *prometheus.CounterVec
}

var (
	autoscalingMetricsOnce sync.Once
	autoscalingMetrics     *AutoscalingMetrics
)

func Autoscaling() *AutoscalingMetrics {
	autoscalingMetricsOnce.Do(func() {
		autoscalingMetrics = &AutoscalingMetrics{
			decisions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "hostlify_autoscaling_decisions_total",
				Help: "Autoscaling decisions by outcome.",
			}, []string{"decision"}),
			debits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "hostlify_autoscaling_debits_total",
				Help: "Autoscaling wallet debits by result.",
			}, []string{"result"}),
		}
	})
	return autoscalingMetrics
}

func (m *AutoscalingMetrics) IncDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *AutoscalingMetrics) IncDebit(result string) {
	m.debits.WithLabelValues(result).Inc()
}
