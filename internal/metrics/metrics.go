// Package metrics exposes Prometheus collectors for the scraping engine.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksAssignedTotal         *prometheus.CounterVec
	taskTransitionsTotal       *prometheus.CounterVec
	workerTransitionsTotal     *prometheus.CounterVec
	taskResultsTotal           *prometheus.CounterVec
	pagesCrawledTotal          *prometheus.CounterVec
	sessionRotationsTotal      prometheus.Counter
	availableWorkers           prometheus.Gauge
	pendingTasks               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksAssignedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_tasks_assigned_total",
				Help: "Total number of tasks assigned to workers, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		taskTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_task_transitions_total",
				Help: "Total number of task status transitions, labeled by new status.",
			},
			[]string{"status"},
		)

		workerTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_worker_transitions_total",
				Help: "Total number of worker status transitions, labeled by new status.",
			},
			[]string{"status"},
		)

		taskResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_task_results_total",
				Help: "Total number of recorded task results, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_pages_crawled_total",
				Help: "Total number of URLs crawled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sessionRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rockscraper_session_rotations_total",
				Help: "Total number of crawl session rotations.",
			},
		)

		availableWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rockscraper_available_workers",
				Help: "Number of workers currently able to accept a task.",
			},
		)

		pendingTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rockscraper_pending_tasks",
				Help: "Number of tasks currently pending assignment.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rockscraper_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rockscraper_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// AddTasksAssigned records tasks assigned by one distribution pass.
func AddTasksAssigned(strategy string, count int) {
	if tasksAssignedTotal == nil || count <= 0 {
		return
	}
	tasksAssignedTotal.WithLabelValues(strategy).Add(float64(count))
}

// IncTaskTransition records a task status change.
func IncTaskTransition(status string) {
	if taskTransitionsTotal == nil {
		return
	}
	taskTransitionsTotal.WithLabelValues(status).Inc()
}

// IncWorkerTransition records a worker status change.
func IncWorkerTransition(status string) {
	if workerTransitionsTotal == nil {
		return
	}
	workerTransitionsTotal.WithLabelValues(status).Inc()
}

// IncTaskResult records a task result by outcome.
func IncTaskResult(success bool) {
	if taskResultsTotal == nil {
		return
	}
	taskResultsTotal.WithLabelValues(outcome(success)).Inc()
}

// IncPageCrawled records one crawled URL by outcome.
func IncPageCrawled(success bool) {
	if pagesCrawledTotal == nil {
		return
	}
	pagesCrawledTotal.WithLabelValues(outcome(success)).Inc()
}

// IncSessionRotation records one crawl session rotation.
func IncSessionRotation() {
	if sessionRotationsTotal == nil {
		return
	}
	sessionRotationsTotal.Inc()
}

// SetAvailableWorkers refreshes the available-worker gauge.
func SetAvailableWorkers(n int) {
	if availableWorkers == nil {
		return
	}
	availableWorkers.Set(float64(n))
}

// SetPendingTasks refreshes the pending-task gauge.
func SetPendingTasks(n int) {
	if pendingTasks == nil {
		return
	}
	pendingTasks.Set(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
