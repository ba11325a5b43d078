package meta

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/uuid"
	"github.com/stretchr/testify/require"
)

//testStorageContract checks behavior which must be equal in all Storage implementations
func testStorageContract(t *testing.T, storage Storage) {
	ctx := context.Background()
	tenant := "tenant-" + uuid.New()
	otherTenant := "other-" + uuid.New()
	now := time.Date(2021, 6, 16, 23, 0, 0, 0, time.UTC)

	source := &entities.Source{
		ID:              uuid.New(),
		TenantID:        tenant,
		Name:            "orders",
		Type:            entities.RelationalConnector,
		Engine:          "postgresql",
		Credentials:     "secret",
		Schedule:        "0 * * * *",
		Status:          entities.SourceDisconnected,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	t.Run("sources", func(t *testing.T) {
		require.NoError(t, storage.CreateSource(ctx, source))
		require.Equal(t, ErrAlreadyExists, storage.CreateSource(ctx, source))

		stored, err := storage.GetSource(ctx, tenant, source.ID)
		require.NoError(t, err)
		require.Equal(t, "orders", stored.Name)
		require.Equal(t, "secret", stored.Credentials)
		require.Equal(t, entities.SourceDisconnected, stored.Status)

		_, err = storage.GetSource(ctx, otherTenant, source.ID)
		require.Equal(t, ErrNotFound, err)

		list, err := storage.ListSources(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, list, 1)

		list, err = storage.ListSources(ctx, otherTenant)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("source run compare and swap", func(t *testing.T) {
		started, err := storage.BeginSourceRun(ctx, tenant, source.ID, "run-1", now.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, entities.SourceSyncing, started.Status)
		require.Equal(t, "run-1", started.RunID)

		_, err = storage.BeginSourceRun(ctx, tenant, source.ID, "run-2", now.Add(time.Minute))
		require.Equal(t, ErrAlreadyRunning, err)

		_, err = storage.BeginSourceRun(ctx, otherTenant, source.ID, "run-3", now)
		require.Equal(t, ErrNotFound, err)

		//update mustn't overwrite status
		patched := started.Clone()
		patched.Name = "orders v2"
		patched.Status = entities.SourceConnected
		require.NoError(t, storage.UpdateSource(ctx, patched))

		stored, err := storage.GetSource(ctx, tenant, source.ID)
		require.NoError(t, err)
		require.Equal(t, "orders v2", stored.Name)
		require.Equal(t, entities.SourceSyncing, stored.Status)

		require.Equal(t, ErrAlreadyRunning, storage.DeleteSource(ctx, tenant, source.ID))

		stalled, err := storage.ListStalledSources(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, containsSource(stalled, source.ID))

		stalled, err = storage.ListStalledSources(ctx, now)
		require.NoError(t, err)
		require.False(t, containsSource(stalled, source.ID))

		finished, err := storage.FinishSourceRun(ctx, tenant, source.ID, "another-run", entities.SourceConnected, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, finished)

		finished, err = storage.FinishSourceRun(ctx, tenant, source.ID, "run-1", entities.SourceConnected, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.True(t, finished)

		finished, err = storage.FinishSourceRun(ctx, tenant, source.ID, "run-1", entities.SourceError, now.Add(3*time.Minute))
		require.NoError(t, err)
		require.False(t, finished)

		stored, err = storage.GetSource(ctx, tenant, source.ID)
		require.NoError(t, err)
		require.Equal(t, entities.SourceConnected, stored.Status)
		require.Empty(t, stored.RunID)
	})

	t.Run("concurrent begin has exactly one winner", func(t *testing.T) {
		var wg sync.WaitGroup
		var mutex sync.Mutex
		winners := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := storage.BeginSourceRun(ctx, tenant, source.ID, uuid.New(), now); err == nil {
					mutex.Lock()
					winners++
					mutex.Unlock()
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, 1, winners)

		stored, err := storage.GetSource(ctx, tenant, source.ID)
		require.NoError(t, err)
		finished, err := storage.FinishSourceRun(ctx, tenant, source.ID, stored.RunID, entities.SourceConnected, now)
		require.NoError(t, err)
		require.True(t, finished)
	})

	pipeline := &entities.Pipeline{
		ID:              uuid.New(),
		TenantID:        tenant,
		SourceID:        source.ID,
		Name:            "daily",
		Steps:           []entities.Step{{Kind: entities.FilterStep, Config: map[string]interface{}{"field": "email"}}},
		Enabled:         true,
		Mode:            entities.StreamingMode,
		Active:          true,
		Status:          entities.PipelineIdle,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	t.Run("pipelines", func(t *testing.T) {
		require.NoError(t, storage.CreatePipeline(ctx, pipeline))

		list, err := storage.ListPipelines(ctx, tenant, source.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Len(t, list[0].Steps, 1)
		require.Nil(t, list[0].LastRunAt)

		list, err = storage.ListPipelines(ctx, tenant, "unknown")
		require.NoError(t, err)
		require.Empty(t, list)

		started, err := storage.BeginPipelineRun(ctx, tenant, pipeline.ID, "run-1", now.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, entities.PipelineRunning, started.Status)
		require.NotNil(t, started.LastRunAt)
		require.True(t, now.Add(time.Minute).Equal(*started.LastRunAt))

		_, err = storage.BeginPipelineRun(ctx, tenant, pipeline.ID, "run-2", now)
		require.Equal(t, ErrAlreadyRunning, err)
		require.Equal(t, ErrAlreadyRunning, storage.DeletePipeline(ctx, tenant, pipeline.ID))

		require.NoError(t, storage.SetPipelineActive(ctx, tenant, pipeline.ID, false))
		stored, err := storage.GetPipeline(ctx, tenant, pipeline.ID)
		require.NoError(t, err)
		require.False(t, stored.Active)
		require.Equal(t, entities.PipelineRunning, stored.Status)

		finished, err := storage.FinishPipelineRun(ctx, tenant, pipeline.ID, "run-1", entities.PipelineIdle, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.True(t, finished)

		require.Equal(t, ErrNotFound, storage.SetPipelineActive(ctx, otherTenant, pipeline.ID, true))
	})

	t.Run("quality", func(t *testing.T) {
		check := &entities.QualityCheck{
			ID:        uuid.New(),
			TenantID:  tenant,
			SourceID:  source.ID,
			Type:      entities.CompletenessCheck,
			Rules:     []entities.QualityRule{{Field: "email", Condition: entities.NotNullCondition, Threshold: 95}},
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, storage.CreateCheck(ctx, check))

		checks, err := storage.ListChecks(ctx, tenant, source.ID)
		require.NoError(t, err)
		require.Len(t, checks, 1)
		require.Equal(t, entities.NotNullCondition, checks[0].Rules[0].Condition)

		for i := 0; i < 3; i++ {
			require.NoError(t, storage.SaveMetric(ctx, &entities.QualityMetric{
				ID:         uuid.New(),
				TenantID:   tenant,
				SourceID:   source.ID,
				CheckID:    check.ID,
				MetricType: check.Type,
				Score:      float64(90 + i),
				CreatedAt:  now.Add(time.Duration(i) * time.Hour),
			}))
		}

		metrics, err := storage.ListMetrics(ctx, tenant, MetricFilter{SourceID: source.ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		require.Equal(t, float64(92), metrics[0].Score)

		metrics, err = storage.ListMetrics(ctx, tenant, MetricFilter{Start: now, End: now.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, metrics, 1)

		require.Equal(t, ErrNotFound, storage.DeleteCheck(ctx, otherTenant, check.ID))
		require.NoError(t, storage.DeleteCheck(ctx, tenant, check.ID))
		_, err = storage.GetCheck(ctx, tenant, check.ID)
		require.Equal(t, ErrNotFound, err)
	})

	t.Run("executions", func(t *testing.T) {
		execution := &entities.Execution{
			ID:               uuid.New(),
			TenantID:         tenant,
			Kind:             entities.SourceSyncKind,
			SourceID:         source.ID,
			JobType:          entities.FullSync,
			Origin:           entities.ManualOrigin,
			Status:           entities.ExecutionCompleted,
			StartedAt:        now,
			FinishedAt:       now.Add(time.Second),
			RecordsProcessed: 10,
		}
		require.NoError(t, storage.SaveExecution(ctx, execution))
		require.Equal(t, ErrAlreadyExists, storage.SaveExecution(ctx, execution))

		pipelineRun := &entities.Execution{
			ID:         uuid.New(),
			TenantID:   tenant,
			Kind:       entities.PipelineRunKind,
			SourceID:   source.ID,
			PipelineID: pipeline.ID,
			Status:     entities.ExecutionFailed,
			StartedAt:  now.Add(time.Minute),
			FinishedAt: now.Add(2 * time.Minute),
			Errors:     []string{"boom"},
		}
		require.NoError(t, storage.SaveExecution(ctx, pipelineRun))

		all, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, pipelineRun.ID, all[0].ID)

		runs, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{Kind: entities.PipelineRunKind})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, []string{"boom"}, runs[0].Errors)

		syncs, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{SourceID: source.ID, Status: entities.ExecutionCompleted})
		require.NoError(t, err)
		require.Len(t, syncs, 1)

		limited, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)

		byPipeline, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{PipelineID: pipeline.ID})
		require.NoError(t, err)
		require.Len(t, byPipeline, 1)
		require.Equal(t, pipelineRun.ID, byPipeline[0].ID)

		bySource, err := storage.ListExecutions(ctx, tenant, ExecutionFilter{SourceID: source.ID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, bySource, 1)
		require.Equal(t, pipelineRun.ID, bySource[0].ID, "newest first")

		foreign, err := storage.ListExecutions(ctx, otherTenant, ExecutionFilter{SourceID: source.ID})
		require.NoError(t, err)
		require.Empty(t, foreign)

		_, err = storage.GetExecution(ctx, otherTenant, execution.ID)
		require.Equal(t, ErrNotFound, err)
	})

	t.Run("lineage", func(t *testing.T) {
		require.NoError(t, storage.AppendEdge(ctx, &entities.LineageEdge{ID: uuid.New(), TenantID: tenant, From: "a", To: "b", CreatedAt: now}))
		require.NoError(t, storage.AppendEdge(ctx, &entities.LineageEdge{ID: uuid.New(), TenantID: tenant, From: "b", To: "c", CreatedAt: now.Add(time.Second)}))

		edges, err := storage.ListEdges(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, edges, 2)
		require.Equal(t, "a", edges[0].From)
	})

	t.Run("delete source", func(t *testing.T) {
		require.Equal(t, ErrNotFound, storage.DeleteSource(ctx, otherTenant, source.ID))
		require.NoError(t, storage.DeleteSource(ctx, tenant, source.ID))
		_, err := storage.GetSource(ctx, tenant, source.ID)
		require.Equal(t, ErrNotFound, err)
	})
}

func containsSource(sources []*entities.Source, id string) bool {
	for _, source := range sources {
		if source.ID == id {
			return true
		}
	}
	return false
}

func TestInMemoryStorage(t *testing.T) {
	testStorageContract(t, NewInMemory())
}

func TestInMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	storage := NewInMemory()
	require.NoError(t, storage.CreateSource(ctx, &entities.Source{ID: "s1", TenantID: "t1", Name: "a", Status: entities.SourceDisconnected}))

	source, err := storage.GetSource(ctx, "t1", "s1")
	require.NoError(t, err)
	source.Status = entities.SourceSyncing

	stored, err := storage.GetSource(ctx, "t1", "s1")
	require.NoError(t, err)
	require.Equal(t, entities.SourceDisconnected, stored.Status)

	rules := []entities.QualityRule{{Field: "amount", Condition: entities.RangeCondition, Threshold: 90, Params: map[string]interface{}{"min": 0}}}
	require.NoError(t, storage.CreateCheck(ctx, &entities.QualityCheck{ID: "c1", TenantID: "t1", SourceID: "s1", Rules: rules}))
	rules[0].Params["min"] = 10

	check, err := storage.GetCheck(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Equal(t, 0, check.Rules[0].Params["min"])
	check.Rules[0].Params["min"] = 20

	checks, err := storage.ListChecks(ctx, "t1", "s1")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, 0, checks[0].Rules[0].Params["min"])
}
