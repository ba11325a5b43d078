package meta

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/test"
	"github.com/ledgerops/warehouse/uuid"
	"github.com/stretchr/testify/require"
)

func TestRedisStorage(t *testing.T) {
	test.SkipIfNoIntegration(t, test.EnvRedisPortVariable)

	ctx := context.Background()
	container, err := test.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer container.Close()

	pool, err := NewRedisPoolFactory(container.Host, container.Port, "").Create()
	require.NoError(t, err)

	storage := NewRedis(pool)
	defer storage.Close()

	testStorageContract(t, storage)
}

func TestRedisExecutionIndexes(t *testing.T) {
	test.SkipIfNoIntegration(t, test.EnvRedisPortVariable)

	ctx := context.Background()
	container, err := test.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer container.Close()

	pool, err := NewRedisPoolFactory(container.Host, container.Port, "").Create()
	require.NoError(t, err)

	storage := NewRedis(pool)
	defer storage.Close()

	tenant := "tenant-" + uuid.New()
	sourceID, otherSourceID, pipelineID := uuid.New(), uuid.New(), uuid.New()
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, storage.SaveExecution(ctx, &entities.Execution{ID: fmt.Sprintf("sync-%d-%s", i, sourceID), TenantID: tenant,
			Kind: entities.SourceSyncKind, SourceID: sourceID, Status: entities.ExecutionCompleted, StartedAt: start.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, storage.SaveExecution(ctx, &entities.Execution{ID: "run-" + pipelineID, TenantID: tenant, Kind: entities.PipelineRunKind,
		SourceID: sourceID, PipelineID: pipelineID, Status: entities.ExecutionFailed, StartedAt: start.Add(time.Hour)}))
	require.NoError(t, storage.SaveExecution(ctx, &entities.Execution{ID: "sync-" + otherSourceID, TenantID: tenant,
		Kind: entities.SourceSyncKind, SourceID: otherSourceID, Status: entities.ExecutionCompleted, StartedAt: start.Add(2 * time.Hour)}))

	conn := pool.Get()
	defer conn.Close()
	cardinality := func(key string) int {
		count, err := redis.Int(conn.Do("ZCARD", key))
		require.NoError(t, err)
		return count
	}
	require.Equal(t, 7, cardinality(tenantIndex(executionsIndex, tenant)))
	require.Equal(t, 6, cardinality(sourceIndex(executionsIndex, sourceID)))
	require.Equal(t, 1, cardinality(sourceIndex(executionsIndex, otherSourceID)))
	require.Equal(t, 1, cardinality(pipelineIndex(executionsIndex, pipelineID)))

	latest, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{SourceID: sourceID, Kind: entities.SourceSyncKind, Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, fmt.Sprintf("sync-4-%s", sourceID), latest[0].ID)
	require.Equal(t, fmt.Sprintf("sync-3-%s", sourceID), latest[1].ID)

	runs, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{PipelineID: pipelineID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, entities.ExecutionFailed, runs[0].Status)

	window, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{SourceID: sourceID, Start: start.Add(time.Minute), End: start.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 2)

	foreign, err := storage.ListExecutions(ctx, "other-"+tenant, ExecutionFilter{SourceID: sourceID})
	require.NoError(t, err)
	require.Empty(t, foreign)
}

func TestRedisPoolFactoryDefaultPort(t *testing.T) {
	factory := NewRedisPoolFactory(`"localhost"`, 0, "")
	port, isDefault := factory.CheckAndSetDefaultPort()
	require.True(t, isDefault)
	require.Equal(t, defaultRedisPort, port)
	require.Equal(t, "localhost:6379", factory.Details())

	factory = NewRedisPoolFactory("redis-host:6380", 0, "")
	port, isDefault = factory.CheckAndSetDefaultPort()
	require.False(t, isDefault)
	require.Equal(t, 6380, port)
	require.Equal(t, "redis-host:6380", factory.Details())

	factory = NewRedisPoolFactory("redis://:pwd@host:6379", 0, "")
	_, isDefault = factory.CheckAndSetDefaultPort()
	require.False(t, isDefault)
	require.Equal(t, "redis://:pwd@host:6379", factory.Details())
}
