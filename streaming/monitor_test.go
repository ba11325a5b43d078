package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) meta.Storage {
	ctx := context.Background()
	storage := meta.NewInMemory()
	now := timestamp.Now().UTC()
	require.NoError(t, storage.CreatePipeline(ctx, &entities.Pipeline{ID: "stream", TenantID: "t1", SourceID: "s1", Name: "clicks", Mode: entities.StreamingMode, Enabled: true, Active: true, Status: entities.PipelineIdle, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, storage.CreatePipeline(ctx, &entities.Pipeline{ID: "batch", TenantID: "t1", SourceID: "s1", Name: "nightly", Mode: entities.BatchMode, Enabled: true, Status: entities.PipelineIdle, CreatedAt: now, UpdatedAt: now}))
	return storage
}

func TestStatusAggregatesWindow(t *testing.T) {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	timestamp.FreezeTimeAt(start)
	defer timestamp.UnfreezeTime()

	monitor := NewMonitor(newStorage(t), 10*time.Second, 0)

	require.NoError(t, monitor.Observe(context.Background(), "t1", "stream", entities.StreamingSample{Records: 1000, Failed: 0, LatencyMs: 50}))
	timestamp.Advance(20 * time.Second)
	require.NoError(t, monitor.Observe(context.Background(), "t1", "stream", entities.StreamingSample{Records: 90, Failed: 10, LatencyMs: 20}))
	require.NoError(t, monitor.Observe(context.Background(), "t1", "stream", entities.StreamingSample{Records: 10, Failed: 0, LatencyMs: 40}))

	statuses, err := monitor.Status(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, statuses, 1, "batch pipelines aren't reported")

	status := statuses[0]
	require.Equal(t, "stream", status.PipelineID)
	require.Equal(t, "clicks", status.Name)
	require.True(t, status.Active)
	require.Equal(t, 2, status.Samples, "the first sample is out of the window")
	require.InDelta(t, 10.0, status.Throughput, 0.0001)
	require.InDelta(t, 30.0, status.AvgLatencyMs, 0.0001)
	require.InDelta(t, 10.0/110.0, status.ErrorRate, 0.0001)

	timestamp.Advance(time.Minute)
	statuses, err = monitor.Status(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, entities.StreamingStatus{PipelineID: "stream", Name: "clicks", Active: true}, statuses[0])
}

func TestObserveValidation(t *testing.T) {
	ctx := context.Background()
	monitor := NewMonitor(newStorage(t), 0, 2)

	require.True(t, errorj.IsValidation(monitor.Observe(ctx, "", "stream", entities.StreamingSample{})))
	require.True(t, errorj.IsValidation(monitor.Observe(ctx, "t1", "stream", entities.StreamingSample{Records: -1})))

	for i := 0; i < 5; i++ {
		require.NoError(t, monitor.Observe(ctx, "t1", "stream", entities.StreamingSample{Records: 1}))
	}
	require.Len(t, monitor.samples[key("t1", "stream")], 2)

	monitor.Forget("t1", "stream")
	require.Empty(t, monitor.samples[key("t1", "stream")])
}

func TestObserveRequiresStreamingPipelineOfTenant(t *testing.T) {
	ctx := context.Background()
	monitor := NewMonitor(newStorage(t), 0, 0)

	require.True(t, errorj.IsNotFound(monitor.Observe(ctx, "t1", "unknown", entities.StreamingSample{Records: 1})))
	require.True(t, errorj.IsNotFound(monitor.Observe(ctx, "t2", "stream", entities.StreamingSample{Records: 1})), "pipeline of another tenant")
	require.True(t, errorj.IsValidation(monitor.Observe(ctx, "t1", "batch", entities.StreamingSample{Records: 1})))

	require.Empty(t, monitor.samples, "rejected samples aren't kept")
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	monitor := NewMonitor(storage, 0, 0)

	paused, err := monitor.Pause(ctx, "t1", "stream")
	require.NoError(t, err)
	require.False(t, paused.Active)

	stored, err := storage.GetPipeline(ctx, "t1", "stream")
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.Equal(t, entities.PipelineIdle, stored.Status, "status isn't touched by pause")

	resumed, err := monitor.Resume(ctx, "t1", "stream")
	require.NoError(t, err)
	require.True(t, resumed.Active)

	_, err = monitor.Pause(ctx, "t1", "batch")
	require.True(t, errorj.IsValidation(err))

	_, err = monitor.Pause(ctx, "t2", "stream")
	require.True(t, errorj.IsNotFound(err))
}
