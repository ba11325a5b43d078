package synchronization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var errConnectionRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

//unavailableStorage fails execution inserts and/or terminal status updates while the flags are set
type unavailableStorage struct {
	meta.Storage
	executionsDown *atomic.Bool
	statusDown     *atomic.Bool
}

func newUnavailableStorage() *unavailableStorage {
	return &unavailableStorage{Storage: meta.NewInMemory(), executionsDown: atomic.NewBool(false), statusDown: atomic.NewBool(false)}
}

func (us *unavailableStorage) SaveExecution(ctx context.Context, execution *entities.Execution) error {
	if us.executionsDown.Load() {
		return errConnectionRefused
	}
	return us.Storage.SaveExecution(ctx, execution)
}

func (us *unavailableStorage) FinishSourceRun(ctx context.Context, tenantID, id, runID string, status entities.SourceStatus, at time.Time) (bool, error) {
	if us.statusDown.Load() {
		return false, errConnectionRefused
	}
	return us.Storage.FinishSourceRun(ctx, tenantID, id, runID, status, at)
}

func beginRun(t *testing.T, storage meta.Storage, startedAt time.Time) (*testEnv, *Job) {
	env := &testEnv{storage: storage}
	env.createSource(t, "t1", "s1", nil)
	_, err := storage.BeginSourceRun(context.Background(), "t1", "s1", "run-1", startedAt)
	require.NoError(t, err)
	return env, &Job{ID: "run-1", TenantID: "t1", Kind: entities.SourceSyncKind, SourceID: "s1", CreatedAt: startedAt}
}

func TestFailedRowInsertKeepsRunInProgress(t *testing.T) {
	ctx := context.Background()
	storage := newUnavailableStorage()
	env, job := beginRun(t, storage, timestamp.Now().UTC().Add(-time.Hour))

	storage.executionsDown.Store(true)
	require.False(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithSuccess(drivers.Result{Processed: 10}))

	require.Equal(t, entities.SourceSyncing, env.sourceStatus(t, "t1", "s1"), "status isn't terminal without the row")
	require.Empty(t, env.executions(t, "t1"))

	//the reaper closes the run once the storage is back
	storage.executionsDown.Store(false)
	closed, err := NewStalledRunsReaper(storage, nil, 10*time.Minute, time.Minute, time.Minute).Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	require.Equal(t, entities.SourceError, env.sourceStatus(t, "t1", "s1"))
	executions := env.executions(t, "t1")
	require.Len(t, executions, 1)
	require.Equal(t, entities.ExecutionFailed, executions[0].Status)
}

func TestStatusIsRestoredFromWrittenRow(t *testing.T) {
	ctx := context.Background()
	storage := newUnavailableStorage()
	env, job := beginRun(t, storage, timestamp.Now().UTC().Add(-time.Hour))

	storage.statusDown.Store(true)
	require.True(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithSuccess(drivers.Result{Processed: 10}),
		"the row is written so the run is closed")
	require.Equal(t, entities.SourceSyncing, env.sourceStatus(t, "t1", "s1"))

	//the reaper can't write a second row and restores status from the existing one
	storage.statusDown.Store(false)
	closed, err := NewStalledRunsReaper(storage, nil, 10*time.Minute, time.Minute, time.Minute).Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, closed)

	require.Equal(t, entities.SourceConnected, env.sourceStatus(t, "t1", "s1"))
	executions := env.executions(t, "t1")
	require.Len(t, executions, 1)
	require.Equal(t, entities.ExecutionCompleted, executions[0].Status)
	require.Equal(t, int64(10), executions[0].RecordsProcessed)
}

func TestTransientRowInsertErrorIsRetried(t *testing.T) {
	storage := &flakyExecutions{Storage: meta.NewInMemory(), failures: atomic.NewInt32(2)}
	env, job := beginRun(t, storage, timestamp.Now().UTC())

	require.True(t, NewTaskCloser(job, NewTaskLogger(job.ID), storage, nil).CloseWithError(errors.New("boom"), false))
	require.Equal(t, entities.SourceError, env.sourceStatus(t, "t1", "s1"))
	require.Len(t, env.executions(t, "t1"), 1)
}

//flakyExecutions fails first N execution inserts
type flakyExecutions struct {
	meta.Storage
	failures *atomic.Int32
}

func (fe *flakyExecutions) SaveExecution(ctx context.Context, execution *entities.Execution) error {
	if fe.failures.Dec() >= 0 {
		return errConnectionRefused
	}
	return fe.Storage.SaveExecution(ctx, execution)
}
