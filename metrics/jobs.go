package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var jobsLabels = []string{"kind"}

var (
	jobsStarted   *prometheus.CounterVec
	jobsSucceeded *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec
	jobsSkipped   *prometheus.CounterVec
	jobsDuration  *prometheus.HistogramVec
)

func initJobs() {
	jobsStarted = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "started",
	}, jobsLabels)
	jobsSucceeded = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "succeeded",
	}, jobsLabels)
	jobsFailed = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "failed",
	}, jobsLabels)
	jobsRetried = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "retried",
	}, jobsLabels)
	jobsSkipped = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "skipped",
	}, jobsLabels)
	jobsDuration = NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, jobsLabels)
}

func JobStarted(kind string) {
	if Enabled() {
		jobsStarted.WithLabelValues(kind).Inc()
	}
}

func JobSucceeded(kind string) {
	if Enabled() {
		jobsSucceeded.WithLabelValues(kind).Inc()
	}
}

func JobFailed(kind string) {
	if Enabled() {
		jobsFailed.WithLabelValues(kind).Inc()
	}
}

func JobRetried(kind string) {
	if Enabled() {
		jobsRetried.WithLabelValues(kind).Inc()
	}
}

func JobSkipped(kind string) {
	if Enabled() {
		jobsSkipped.WithLabelValues(kind).Inc()
	}
}

func JobDuration(kind string, seconds float64) {
	if Enabled() {
		jobsDuration.WithLabelValues(kind).Observe(seconds)
	}
}
