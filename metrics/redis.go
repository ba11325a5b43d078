package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var redisLabels = []string{"error_type"}

var (
	metaRedisErrors         *prometheus.CounterVec
	coordinationRedisErrors *prometheus.CounterVec
)

func initRedis() {
	metaRedisErrors = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "meta",
		Name:      "redis",
	}, redisLabels)
	coordinationRedisErrors = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordination",
		Name:      "redis",
	}, redisLabels)
}

func MetaRedisErrors(errorType string) {
	if Enabled() {
		metaRedisErrors.WithLabelValues(errorType).Inc()
	}
}

func CoordinationRedisErrors(errorType string) {
	if Enabled() {
		coordinationRedisErrors.WithLabelValues(errorType).Inc()
	}
}
