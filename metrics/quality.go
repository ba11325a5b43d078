package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var qualityLabels = []string{"check_type"}

var (
	qualityRuns  *prometheus.CounterVec
	qualityScore *prometheus.GaugeVec
)

func initQuality() {
	qualityRuns = NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quality",
		Name:      "runs",
	}, qualityLabels)
	qualityScore = NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "quality",
		Name:      "last_score",
	}, qualityLabels)
}

//QualityCheckRun counts check runs and keeps the last score per check type
func QualityCheckRun(checkType string, score float64) {
	if Enabled() {
		qualityRuns.WithLabelValues(checkType).Inc()
		qualityScore.WithLabelValues(checkType).Set(score)
	}
}
