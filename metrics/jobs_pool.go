package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var jobsPoolLabels = []string{"type"}

var (
	jobsGoroutinesPoolSize *prometheus.GaugeVec
	jobsQueueSize          *prometheus.GaugeVec
)

func initJobsPool() {
	jobsGoroutinesPoolSize = NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "goroutines_pool",
	}, jobsPoolLabels)
	jobsQueueSize = NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "queue_size",
	}, []string{})
}

func FreeJobsGoroutines(value int) {
	if Enabled() {
		jobsGoroutinesPoolSize.WithLabelValues("free").Set(float64(value))
	}
}

func RunningJobsGoroutines(value int) {
	if Enabled() {
		jobsGoroutinesPoolSize.WithLabelValues("running").Set(float64(value))
	}
}

func JobsQueueSize(value int64) {
	if Enabled() {
		jobsQueueSize.WithLabelValues().Set(float64(value))
	}
}
