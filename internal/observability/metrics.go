package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "task_agent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "task_agent",
			Name:      "dispatch_total",
			Help:      "Dispatched instructions by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "task_agent",
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end dispatch duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	classifierRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "task_agent",
			Name:      "classifier_requests_total",
			Help:      "Classifier calls by provider and status.",
		},
		[]string{"provider", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, dispatchTotal, dispatchDuration, classifierRequests)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDispatch 记录一次分发；outcome 为 success、refused 或错误分类。
func RecordDispatch(operation, outcome string, duration time.Duration) {
	RegisterMetrics()
	if operation == "" {
		operation = "none"
	}
	dispatchTotal.WithLabelValues(operation, outcome).Inc()
	dispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordClassifier(provider, status string) {
	RegisterMetrics()
	classifierRequests.WithLabelValues(provider, status).Inc()
}
