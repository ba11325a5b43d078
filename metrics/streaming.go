package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	streamingRecords *prometheus.CounterVec
	streamingFailed  *prometheus.CounterVec
)

func initStreaming() {
	streamingRecords = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "streaming",
		Name:      "records",
	}, []string{"tenant_id"})
	streamingFailed = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "streaming",
		Name:      "failed",
	}, []string{"tenant_id"})
}

func StreamingObserved(tenantID string, records, failed int64) {
	if Enabled() {
		streamingRecords.WithLabelValues(tenantID).Add(float64(records))
		streamingFailed.WithLabelValues(tenantID).Add(float64(failed))
	}
}
