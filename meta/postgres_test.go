package meta

import (
	"context"
	"testing"

	"github.com/ledgerops/warehouse/test"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorage(t *testing.T) {
	test.SkipIfNoIntegration(t, test.EnvPostgresPortVariable)

	ctx := context.Background()
	container, err := test.NewPostgresContainer(ctx)
	require.NoError(t, err)
	defer container.Close()

	storage, err := NewPostgres(ctx, container.DSN())
	require.NoError(t, err)
	defer storage.Close()

	testStorageContract(t, storage)

	count, err := container.CountRows(pipelineExecutionView)
	require.NoError(t, err)
	require.True(t, count >= 1)
}

func TestQueryBuilder(t *testing.T) {
	qb := newQueryBuilder("t1")
	qb.equal("kind", "pipeline_run")
	qb.equal("source_id", "")
	qb.equal("status", "failed")

	require.Equal(t, " WHERE tenant_id = $1 AND kind = $2 AND status = $3", qb.where())
	require.Equal(t, []interface{}{"t1", "pipeline_run", "failed"}, qb.args)
	require.Equal(t, " LIMIT 5", qb.limit(5))
	require.Equal(t, "", qb.limit(0))
}
