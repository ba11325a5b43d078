package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDisabledMetricsAreNoop(t *testing.T) {
	Registry = nil
	require.False(t, Enabled())

	JobStarted("source_sync")
	FreeJobsGoroutines(1)
	MetaRedisErrors("UNKNOWN")
	QualityCheckRun("completeness", 100)
}

func TestJobsMetrics(t *testing.T) {
	Init(false)
	defer func() { Registry = nil }()

	JobStarted("source_sync")
	JobStarted("source_sync")
	JobFailed("pipeline_run")
	RunningJobsGoroutines(3)
	JobDuration("source_sync", 1.5)

	require.Equal(t, float64(2), testutil.ToFloat64(jobsStarted.WithLabelValues("source_sync")))
	require.Equal(t, float64(1), testutil.ToFloat64(jobsFailed.WithLabelValues("pipeline_run")))
	require.Equal(t, float64(3), testutil.ToFloat64(jobsGoroutinesPoolSize.WithLabelValues("running")))

	QualityCheckRun("completeness", 97.5)
	require.Equal(t, 97.5, testutil.ToFloat64(qualityScore.WithLabelValues("completeness")))
}
