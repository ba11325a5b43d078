package lineage

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
	"github.com/stretchr/testify/require"
)

func TestGraphLevelsAndInference(t *testing.T) {
	uuid.InitMock()
	defer uuid.DisableMock()
	timestamp.FreezeTimeAt(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	defer timestamp.UnfreezeTime()

	ctx := context.Background()
	storage := meta.NewInMemory()
	require.NoError(t, storage.CreateSource(ctx, &entities.Source{ID: "orders_db", TenantID: "t1", Name: "Orders DB"}))
	require.NoError(t, storage.CreatePipeline(ctx, &entities.Pipeline{ID: "p1", TenantID: "t1", SourceID: "orders_db", Name: "daily", Destination: "warehouse.orders"}))

	tracker := NewTracker(storage)

	//orders_db -> clean -> enrich -> warehouse.orders, plus a shortcut orders_db -> enrich
	for _, pair := range [][2]string{{"orders_db", "clean"}, {"clean", "enrich"}, {"enrich", "warehouse.orders"}, {"orders_db", "enrich"}} {
		timestamp.Advance(time.Second)
		_, err := tracker.RecordTransformation(ctx, "t1", &TransformationRequest{Source: pair[0], Target: pair[1], Type: "etl"})
		require.NoError(t, err)
	}

	//duplicate fact is collapsed in the graph
	_, err := tracker.RecordTransformation(ctx, "t1", &TransformationRequest{Source: "clean", Target: "enrich"})
	require.NoError(t, err)

	graph, err := tracker.Graph(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, graph.Edges, 4)

	require.Equal(t, []entities.LineageNode{
		{ID: "orders_db", Type: entities.LineageSource, Name: "Orders DB", Level: 0},
		{ID: "clean", Type: entities.LineageTransformation, Name: "clean", Level: 1},
		{ID: "enrich", Type: entities.LineageTransformation, Name: "enrich", Level: 2},
		{ID: "warehouse.orders", Type: entities.LineageTarget, Name: "warehouse.orders", Level: 3},
	}, graph.Nodes)

	impact, err := tracker.Impact(ctx, "t1", "clean")
	require.NoError(t, err)
	require.Equal(t, []string{"enrich", "warehouse.orders"}, impact)

	_, err = tracker.Impact(ctx, "t1", "unknown")
	require.True(t, errorj.IsNotFound(err))

	//other tenant doesn't see the graph
	other, err := tracker.Graph(ctx, "t2")
	require.NoError(t, err)
	require.Empty(t, other.Nodes)
}

func TestRecordPipelineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := meta.NewInMemory()
	tracker := NewTracker(storage)

	pipeline := &entities.Pipeline{ID: "p1", TenantID: "t1", SourceID: "s1", Name: "daily", Destination: "dwh.events"}
	require.NoError(t, tracker.RecordPipeline(ctx, pipeline))
	require.NoError(t, tracker.RecordPipeline(ctx, pipeline))

	edges, err := storage.ListEdges(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, edges, 2)

	graph, err := tracker.Graph(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, graph.Nodes, 3)
	require.Equal(t, "s1", graph.Nodes[0].ID)
	require.Equal(t, entities.LineageSource, graph.Nodes[0].Type)
	require.Equal(t, entities.LineageTarget, graph.Nodes[2].Type)
}

func TestRecordTransformationValidation(t *testing.T) {
	tracker := NewTracker(meta.NewInMemory())

	_, err := tracker.RecordTransformation(context.Background(), "t1", &TransformationRequest{Source: "a"})
	require.True(t, errorj.IsValidation(err))

	_, err = tracker.RecordTransformation(context.Background(), "t1", &TransformationRequest{Source: "a", Target: "a"})
	require.True(t, errorj.IsValidation(err))

	_, err = tracker.RecordTransformation(context.Background(), "t1", &TransformationRequest{Source: "a", Target: "b", TargetType: "sink"})
	require.True(t, errorj.IsValidation(err))
}
