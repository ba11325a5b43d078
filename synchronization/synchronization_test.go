package synchronization

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/coordination"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/lineage"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/queue"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type testEnv struct {
	storage      meta.Storage
	coordination *coordination.Service
	taskService  *TaskService
	executor     *TaskExecutor
	tracker      *lineage.Tracker
}

func newTestEnv(t *testing.T, config ExecutorConfig) *testEnv {
	if config.PoolSize == 0 {
		config.PoolSize = 4
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = RetryConfig{MaxAttempts: 1, InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond}
	}

	storage := meta.NewInMemory()
	jobsQueue := queue.NewInMemory()
	coordinationService := coordination.NewInMemoryService()
	tracker := lineage.NewTracker(storage)

	executor, err := NewTaskExecutor(config, jobsQueue, storage, coordinationService, NewRunners(storage, drivers.NewFactory()), tracker)
	require.NoError(t, err)
	t.Cleanup(func() {
		executor.Close()
		jobsQueue.Close()
	})

	return &testEnv{
		storage:      storage,
		coordination: coordinationService,
		taskService:  NewTaskService(storage, jobsQueue, tracker),
		executor:     executor,
		tracker:      tracker,
	}
}

func (te *testEnv) createSource(t *testing.T, tenantID, id string, config map[string]interface{}) {
	now := timestamp.Now().UTC()
	require.NoError(t, te.storage.CreateSource(context.Background(), &entities.Source{
		ID:              id,
		TenantID:        tenantID,
		Name:            id,
		Type:            entities.RelationalConnector,
		Engine:          "postgresql",
		Schedule:        "0 * * * *",
		Config:          config,
		Status:          entities.SourceDisconnected,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

func (te *testEnv) createPipeline(t *testing.T, tenantID, id, sourceID string, steps []entities.Step) {
	now := timestamp.Now().UTC()
	require.NoError(t, te.storage.CreatePipeline(context.Background(), &entities.Pipeline{
		ID:              id,
		TenantID:        tenantID,
		SourceID:        sourceID,
		Name:            id,
		Steps:           steps,
		Enabled:         true,
		Mode:            entities.BatchMode,
		Destination:     "dwh." + id,
		Status:          entities.PipelineIdle,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

//waitExecution waits until the execution row is written and the entity status is terminal
func (te *testEnv) waitExecution(t *testing.T, tenantID, executionID string) *entities.Execution {
	var execution *entities.Execution
	require.Eventually(t, func() bool {
		e, err := te.storage.GetExecution(context.Background(), tenantID, executionID)
		if err != nil {
			return false
		}
		execution = e
		return true
	}, waitFor, tick)
	return execution
}

func (te *testEnv) executions(t *testing.T, tenantID string) []*entities.Execution {
	executions, err := te.storage.ListExecutions(context.Background(), tenantID, meta.ExecutionFilter{})
	require.NoError(t, err)
	return executions
}

func (te *testEnv) sourceStatus(t *testing.T, tenantID, id string) entities.SourceStatus {
	source, err := te.storage.GetSource(context.Background(), tenantID, id)
	require.NoError(t, err)
	return source.Status
}

func (te *testEnv) pipelineStatus(t *testing.T, tenantID, id string) entities.PipelineStatus {
	pipeline, err := te.storage.GetPipeline(context.Background(), tenantID, id)
	require.NoError(t, err)
	return pipeline.Status
}

func TestTriggerSyncCompletes(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 120, "failed_records": 3, "delay": "200ms"})
	require.Equal(t, entities.SourceDisconnected, env.sourceStatus(t, "t1", "s1"))

	accepted, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", "", "")
	require.NoError(t, err)
	require.Equal(t, entities.ExecutionPending, accepted.Status)
	require.Equal(t, entities.SourceSyncKind, accepted.Kind)
	require.Equal(t, entities.SourceSyncing, env.sourceStatus(t, "t1", "s1"), "status is flipped before the job runs")

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Eventually(t, func() bool { return env.sourceStatus(t, "t1", "s1") == entities.SourceConnected }, waitFor, tick)

	require.Equal(t, entities.ExecutionCompleted, execution.Status)
	require.Equal(t, entities.FullSync, execution.JobType)
	require.Equal(t, entities.ManualOrigin, execution.Origin)
	require.Equal(t, int64(120), execution.RecordsProcessed)
	require.Equal(t, int64(3), execution.RecordsFailed)
	require.Empty(t, execution.Errors)
	require.False(t, execution.FinishedAt.Before(execution.StartedAt))
	require.Len(t, env.executions(t, "t1"), 1)
}

func TestTriggerSyncTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 1, "delay": "300ms"})

	first, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", entities.FullSync, entities.ManualOrigin)
	require.NoError(t, err)

	_, err = env.taskService.TriggerSync(context.Background(), "t1", "s1", entities.FullSync, entities.ManualOrigin)
	require.Error(t, err)
	require.True(t, errorj.IsConflict(err))
	require.Contains(t, err.Error(), "already syncing")

	env.waitExecution(t, "t1", first.ExecutionID)
	require.Eventually(t, func() bool { return env.sourceStatus(t, "t1", "s1") == entities.SourceConnected }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	require.Len(t, env.executions(t, "t1"), 1)
}

func TestTriggerSyncValidation(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", nil)

	_, err := env.taskService.TriggerSync(context.Background(), "t2", "s1", "", "")
	require.True(t, errorj.IsNotFound(err), "sources of other tenants aren't visible")

	_, err = env.taskService.TriggerSync(context.Background(), "", "s1", "", "")
	require.True(t, errorj.IsValidation(err))

	require.Equal(t, entities.SourceDisconnected, env.sourceStatus(t, "t1", "s1"))
}

func TestSyncFailure(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"error": "connection refused"})

	accepted, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", entities.IncrementalSync, entities.ScheduleOrigin)
	require.NoError(t, err)

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Eventually(t, func() bool { return env.sourceStatus(t, "t1", "s1") == entities.SourceError }, waitFor, tick)

	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.Equal(t, entities.ScheduleOrigin, execution.Origin)
	require.Equal(t, entities.IncrementalSync, execution.JobType)
	require.Len(t, execution.Errors, 1)
	require.Contains(t, execution.Errors[0], "connection refused")
	require.Equal(t, 0, execution.RetryCount, "permanent errors aren't retried")
}

func TestTransientErrorsAreRetried(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{Retry: RetryConfig{MaxAttempts: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond}})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 10, "transient_failures": 2})
	env.createSource(t, "t1", "s2", map[string]interface{}{"records": 10, "transient_failures": 5})

	recovered, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", "", "")
	require.NoError(t, err)
	exhausted, err := env.taskService.TriggerSync(context.Background(), "t1", "s2", "", "")
	require.NoError(t, err)

	execution := env.waitExecution(t, "t1", recovered.ExecutionID)
	require.Equal(t, entities.ExecutionCompleted, execution.Status)
	require.Equal(t, 2, execution.RetryCount)
	require.Equal(t, int64(10), execution.RecordsProcessed)

	execution = env.waitExecution(t, "t1", exhausted.ExecutionID)
	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.Equal(t, 2, execution.RetryCount)
	require.Contains(t, execution.Errors[0], "temporarily unavailable")
}

func TestJobDeadline(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{Timeout: 100 * time.Millisecond})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 10, "delay": "10s"})

	accepted, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", "", "")
	require.NoError(t, err)

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Eventually(t, func() bool { return env.sourceStatus(t, "t1", "s1") == entities.SourceError }, waitFor, tick)
	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.Contains(t, execution.Errors[0], "exceeded deadline")
	require.Less(t, execution.DurationMs, int64(5000))
}

func TestLockedRunFails(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 10})

	held := env.coordination.CreateLock((&Job{Kind: entities.SourceSyncKind, TenantID: "t1", SourceID: "s1"}).LockName())
	require.NoError(t, held.TryLock())
	defer held.Unlock()

	accepted, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", "", "")
	require.NoError(t, err)

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.Equal(t, []string{"previous run still executing"}, execution.Errors)
}

func TestPipelineRun(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 100})
	env.createPipeline(t, "t1", "p1", "s1", []entities.Step{
		{Kind: entities.FilterStep, Name: "active only", Config: map[string]interface{}{"expression": "active = true", "drop_rate": 0.5}},
		{Kind: entities.CustomStep, Name: "dedupe", Config: map[string]interface{}{"name": "dedupe", "failed_records": 5}},
	})

	accepted, err := env.taskService.ExecutePipeline(context.Background(), "t1", "p1", "")
	require.NoError(t, err)
	require.Equal(t, entities.PipelineRunKind, accepted.Kind)

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Eventually(t, func() bool { return env.pipelineStatus(t, "t1", "p1") == entities.PipelineIdle }, waitFor, tick)

	require.Equal(t, entities.ExecutionCompleted, execution.Status)
	require.Equal(t, "p1", execution.PipelineID)
	require.Equal(t, "s1", execution.SourceID)
	require.Equal(t, int64(45), execution.RecordsProcessed)
	require.Equal(t, int64(5), execution.RecordsFailed)

	require.Eventually(t, func() bool {
		graph, err := env.tracker.Graph(context.Background(), "t1")
		return err == nil && len(graph.Edges) == 2
	}, waitFor, tick, "lineage is recorded on pipeline success")

	pipeline, err := env.storage.GetPipeline(context.Background(), "t1", "p1")
	require.NoError(t, err)
	require.NotNil(t, pipeline.LastRunAt)
	require.Equal(t, entities.SourceDisconnected, env.sourceStatus(t, "t1", "s1"), "pipeline run doesn't change source status")
}

func TestPipelineRunStepFailure(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 100})
	env.createPipeline(t, "t1", "p1", "s1", []entities.Step{
		{Kind: entities.MapStep, Config: map[string]interface{}{"mappings": map[string]interface{}{"a": "b"}}},
		{Kind: entities.CustomStep, Name: "broken"},
	})

	accepted, err := env.taskService.ExecutePipeline(context.Background(), "t1", "p1", entities.ManualOrigin)
	require.NoError(t, err)

	execution := env.waitExecution(t, "t1", accepted.ExecutionID)
	require.Eventually(t, func() bool { return env.pipelineStatus(t, "t1", "p1") == entities.PipelineError }, waitFor, tick)
	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.True(t, strings.Contains(execution.Errors[0], "step #1 (custom) failed"), execution.Errors[0])

	graph, err := env.tracker.Graph(context.Background(), "t1")
	require.NoError(t, err)
	require.Empty(t, graph.Edges, "failed runs don't record lineage")
}

func TestDisabledPipelineIsRejected(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{})
	env.createSource(t, "t1", "s1", nil)
	env.createPipeline(t, "t1", "p1", "s1", nil)

	pipeline, err := env.storage.GetPipeline(context.Background(), "t1", "p1")
	require.NoError(t, err)
	pipeline.Enabled = false
	require.NoError(t, env.storage.UpdatePipeline(context.Background(), pipeline))

	_, err = env.taskService.ExecutePipeline(context.Background(), "t1", "p1", "")
	require.True(t, errorj.IsValidation(err))
	require.Equal(t, entities.PipelineIdle, env.pipelineStatus(t, "t1", "p1"))

	_, err = env.taskService.ExecutePipeline(context.Background(), "t1", "unknown", "")
	require.True(t, errorj.IsNotFound(err))
}

func TestTenantLimitSerializesJobs(t *testing.T) {
	env := newTestEnv(t, ExecutorConfig{PoolSize: 4, TenantLimit: 1})
	env.createSource(t, "t1", "s1", map[string]interface{}{"records": 1, "delay": "150ms"})
	env.createSource(t, "t1", "s2", map[string]interface{}{"records": 2, "delay": "150ms"})

	first, err := env.taskService.TriggerSync(context.Background(), "t1", "s1", "", "")
	require.NoError(t, err)
	second, err := env.taskService.TriggerSync(context.Background(), "t1", "s2", "", "")
	require.NoError(t, err)

	e1 := env.waitExecution(t, "t1", first.ExecutionID)
	e2 := env.waitExecution(t, "t1", second.ExecutionID)
	require.Equal(t, entities.ExecutionCompleted, e1.Status)
	require.Equal(t, entities.ExecutionCompleted, e2.Status)

	earlier, later := e1, e2
	if later.StartedAt.Before(earlier.StartedAt) {
		earlier, later = later, earlier
	}
	require.False(t, later.StartedAt.Before(earlier.FinishedAt), "jobs of one tenant don't overlap")
}

func TestReaperClosesStalledRuns(t *testing.T) {
	ctx := context.Background()
	storage := meta.NewInMemory()
	env := &testEnv{storage: storage}
	env.createSource(t, "t1", "s1", nil)

	startedAt := timestamp.Now().UTC().Add(-time.Hour)
	_, err := storage.BeginSourceRun(ctx, "t1", "s1", "run-1", startedAt)
	require.NoError(t, err)

	reaper := NewStalledRunsReaper(storage, nil, 30*time.Minute, 10*time.Minute, time.Minute)
	closed, err := reaper.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	require.Equal(t, entities.SourceError, env.sourceStatus(t, "t1", "s1"))
	execution, err := storage.GetExecution(ctx, "t1", "run-1")
	require.NoError(t, err)
	require.Equal(t, entities.ExecutionFailed, execution.Status)
	require.Contains(t, execution.Errors[0], "exceeded deadline and grace period")
	require.Equal(t, startedAt, execution.StartedAt)

	//late executor loses the terminal status race and doesn't write a second row
	job := &Job{ID: "run-1", TenantID: "t1", Kind: entities.SourceSyncKind, SourceID: "s1", CreatedAt: startedAt}
	require.False(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithSuccess(drivers.Result{Processed: 10}))

	closed, err = reaper.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, closed)

	executions, err := storage.ListExecutions(ctx, "t1", meta.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, executions, 1)
}

func TestReaperWaitsForDeadlineAndGrace(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	timestamp.FreezeTimeAt(start)
	defer timestamp.UnfreezeTime()

	storage := meta.NewInMemory()
	env := &testEnv{storage: storage}
	env.createSource(t, "t1", "s1", nil)
	_, err := storage.BeginSourceRun(ctx, "t1", "s1", "run-1", start)
	require.NoError(t, err)

	require.Equal(t, 35*time.Minute, StalledThreshold(30*time.Minute, 5*time.Minute))
	reaper := NewStalledRunsReaper(storage, nil, 30*time.Minute, 5*time.Minute, time.Minute)

	//older than the grace period but still within the job deadline
	timestamp.FreezeTimeAt(start.Add(20 * time.Minute))
	closed, err := reaper.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, closed)
	require.Equal(t, entities.SourceSyncing, env.sourceStatus(t, "t1", "s1"))

	//deadline passed, grace period not yet
	timestamp.FreezeTimeAt(start.Add(34 * time.Minute))
	closed, err = reaper.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, closed)

	timestamp.FreezeTimeAt(start.Add(36 * time.Minute))
	closed, err = reaper.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)
	require.Equal(t, entities.SourceError, env.sourceStatus(t, "t1", "s1"))
}

func TestPriority(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.Greater(t, jobPriority(entities.ManualOrigin, now), jobPriority(entities.ScheduleOrigin, now))
	require.Greater(t, jobPriority(entities.ManualOrigin, now.Add(24*time.Hour)), jobPriority(entities.ScheduleOrigin, now),
		"class dominates creation time")
	require.Greater(t, jobPriority(entities.ScheduleOrigin, now), jobPriority(entities.ScheduleOrigin, now.Add(time.Millisecond)),
		"older jobs go first")
}
