package synchronization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/coordination"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/queue"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

//countingRunner counts extractions
type countingRunner struct {
	runs *atomic.Int32
}

func (cr *countingRunner) Kind() entities.ExecutionKind {
	return entities.SourceSyncKind
}

func (cr *countingRunner) Execute(ctx context.Context, job *Job, taskLogger *TaskLogger) (drivers.Result, error) {
	cr.runs.Inc()
	return drivers.Result{Processed: 1}, nil
}

func newCountingExecutor(t *testing.T, storage meta.Storage) (queue.Queue, *countingRunner) {
	jobsQueue := queue.NewInMemory()
	runner := &countingRunner{runs: atomic.NewInt32(0)}
	executor, err := NewTaskExecutor(ExecutorConfig{PoolSize: 2, Retry: RetryConfig{MaxAttempts: 1}}, jobsQueue, storage,
		coordination.NewInMemoryService(), map[entities.ExecutionKind]Runner{entities.SourceSyncKind: runner}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		executor.Close()
		jobsQueue.Close()
	})
	return jobsQueue, runner
}

func TestClosedRunIsNotExecuted(t *testing.T) {
	storage := meta.NewInMemory()
	env, job := beginRun(t, storage, timestamp.Now().UTC())

	//the run is closed (e.g. by stalled runs reaper) while its job is still queued
	require.True(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithError(errors.New("exceeded deadline"), false))

	jobsQueue, runner := newCountingExecutor(t, storage)
	require.NoError(t, jobsQueue.Push(job, job.Priority))

	require.Eventually(t, func() bool { return jobsQueue.Size() == 0 }, waitFor, tick)
	require.Never(t, func() bool { return runner.runs.Load() > 0 }, 300*time.Millisecond, tick)

	require.Equal(t, entities.SourceError, env.sourceStatus(t, "t1", "s1"))
	executions := env.executions(t, "t1")
	require.Len(t, executions, 1)
	require.Equal(t, entities.ExecutionFailed, executions[0].Status)
}

func TestReplacedRunIsNotExecuted(t *testing.T) {
	ctx := context.Background()
	storage := meta.NewInMemory()
	env, stale := beginRun(t, storage, timestamp.Now().UTC())
	require.True(t, NewTaskCloser(stale, NewTaskLogger(stale.ID), storage, nil).CloseWithError(errors.New("exceeded deadline"), false))

	now := timestamp.Now().UTC()
	_, err := storage.BeginSourceRun(ctx, "t1", "s1", "run-2", now)
	require.NoError(t, err)
	current := &Job{ID: "run-2", TenantID: "t1", Kind: entities.SourceSyncKind, SourceID: "s1", CreatedAt: now}

	jobsQueue, runner := newCountingExecutor(t, storage)
	require.NoError(t, jobsQueue.Push(stale, stale.Priority))
	require.NoError(t, jobsQueue.Push(current, current.Priority))

	env.waitExecution(t, "t1", "run-2")
	require.Eventually(t, func() bool { return env.sourceStatus(t, "t1", "s1") == entities.SourceConnected }, waitFor, tick)
	require.Never(t, func() bool { return runner.runs.Load() > 1 }, 300*time.Millisecond, tick)
	require.Equal(t, int32(1), runner.runs.Load(), "only the current run is executed")
	require.Len(t, env.executions(t, "t1"), 2)
}

func TestJobOfDeletedSourceIsSkipped(t *testing.T) {
	storage := meta.NewInMemory()
	env, job := beginRun(t, storage, timestamp.Now().UTC())
	require.True(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithError(errors.New("exceeded deadline"), false))
	require.NoError(t, storage.DeleteSource(context.Background(), "t1", "s1"))

	jobsQueue, runner := newCountingExecutor(t, storage)
	require.NoError(t, jobsQueue.Push(job, job.Priority))

	require.Eventually(t, func() bool { return jobsQueue.Size() == 0 }, waitFor, tick)
	require.Never(t, func() bool { return runner.runs.Load() > 0 }, 300*time.Millisecond, tick)
	require.Len(t, env.executions(t, "t1"), 1)
}
