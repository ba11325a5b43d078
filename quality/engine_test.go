package quality

import (
	"context"
	"math"
	"testing"

	"github.com/ledgerops/warehouse/audit"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, sourceConfig map[string]interface{}) (*Engine, meta.Storage, *audit.MemorySink) {
	storage := meta.NewInMemory()
	now := timestamp.Now().UTC()
	require.NoError(t, storage.CreateSource(context.Background(), &entities.Source{ID: "s1", TenantID: "t1", Name: "users", Type: entities.DocumentConnector, Config: sourceConfig, Status: entities.SourceConnected, CreatedAt: now}))

	sink := audit.NewMemorySink()
	return NewEngine(storage, drivers.NewFactory(), sink, 0), storage, sink
}

func TestRunProducesOneMetric(t *testing.T) {
	ctx := context.Background()
	engine, storage, sink := newTestEngine(t, map[string]interface{}{"pass_rate": 97.5})

	check, err := engine.Create(ctx, "t1", &CheckRequest{
		SourceID: "s1",
		Type:     "completeness",
		Rules:    []RuleRequest{{Field: "email", Condition: "not_null", Threshold: 95}},
	})
	require.NoError(t, err)
	require.True(t, check.Enabled)
	require.Len(t, sink.Find(entities.QualityCheckCreated, check.ID), 1)

	metric, err := engine.Run(ctx, "t1", check.ID)
	require.NoError(t, err)
	require.Equal(t, check.ID, metric.CheckID)
	require.Equal(t, entities.CompletenessCheck, metric.MetricType)
	require.Equal(t, 97.5, metric.Score)
	require.Equal(t, 1, metric.Details["passed"])
	require.NotContains(t, metric.Details, "errors")

	metrics, err := storage.ListMetrics(ctx, "t1", meta.MetricFilter{CheckID: check.ID})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.GreaterOrEqual(t, metrics[0].Score, MinScore)
	require.LessOrEqual(t, metrics[0].Score, MaxScore)

	stored, err := engine.Get(ctx, "t1", check.ID)
	require.NoError(t, err)
	require.True(t, stored.Enabled, "running a check doesn't change its enabled flag")

	disabled := false
	disabledCheck, err := engine.Create(ctx, "t1", &CheckRequest{SourceID: "s1", Type: "validity", Enabled: &disabled,
		Rules: []RuleRequest{{Field: "email", Condition: "regex", Threshold: "90", Params: map[string]interface{}{"pattern": ".+@.+"}}}})
	require.NoError(t, err)
	_, err = engine.Run(ctx, "t1", disabledCheck.ID)
	require.NoError(t, err, "disabled checks can be run manually")

	stored, err = engine.Get(ctx, "t1", disabledCheck.ID)
	require.NoError(t, err)
	require.False(t, stored.Enabled)

	sourceMetrics, err := engine.Metrics(ctx, "t1", "s1", 0)
	require.NoError(t, err)
	require.Len(t, sourceMetrics, 2)
	require.Equal(t, disabledCheck.ID, sourceMetrics[0].CheckID, "newest first")
}

func TestRunScoreIsClamped(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]interface{}{"pass_rate": 180})
	check, err := engine.Create(context.Background(), "t1", &CheckRequest{SourceID: "s1", Type: "accuracy",
		Rules: []RuleRequest{{Field: "amount", Condition: "range", Threshold: 99, Params: map[string]interface{}{"min": 0, "max": "1000"}}}})
	require.NoError(t, err)

	metric, err := engine.Run(context.Background(), "t1", check.ID)
	require.NoError(t, err)
	require.Equal(t, MaxScore, metric.Score)
}

func TestProfilingErrorScoresZero(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]interface{}{"profile_error": "collection is unreachable"})
	check, err := engine.Create(context.Background(), "t1", &CheckRequest{SourceID: "s1", Type: "timeliness",
		Rules: []RuleRequest{{Field: "updated_at", Condition: "fresh_within", Threshold: 50, Params: map[string]interface{}{"duration": "24h"}}}})
	require.NoError(t, err)

	metric, err := engine.Run(context.Background(), "t1", check.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, metric.Score)
	require.Equal(t, 0, metric.Details["passed"])

	errs, ok := metric.Details["errors"].([]string)
	require.True(t, ok)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "collection is unreachable")
}

func TestCreateCheckValidation(t *testing.T) {
	engine, storage, _ := newTestEngine(t, nil)

	tests := []struct {
		name string
		req  *CheckRequest
	}{
		{"no rules", &CheckRequest{SourceID: "s1", Type: "completeness"}},
		{"unknown type", &CheckRequest{SourceID: "s1", Type: "beauty", Rules: []RuleRequest{{Field: "a", Condition: "not_null", Threshold: 1}}}},
		{"unknown condition", &CheckRequest{SourceID: "s1", Type: "completeness", Rules: []RuleRequest{{Field: "a", Condition: "pretty", Threshold: 1}}}},
		{"threshold above 100", &CheckRequest{SourceID: "s1", Type: "completeness", Rules: []RuleRequest{{Field: "a", Condition: "not_null", Threshold: 101}}}},
		{"threshold isn't a number", &CheckRequest{SourceID: "s1", Type: "completeness", Rules: []RuleRequest{{Field: "a", Condition: "not_null", Threshold: "high"}}}},
		{"missing threshold", &CheckRequest{SourceID: "s1", Type: "completeness", Rules: []RuleRequest{{Field: "a", Condition: "not_null"}}}},
		{"empty field", &CheckRequest{SourceID: "s1", Type: "completeness", Rules: []RuleRequest{{Condition: "not_null", Threshold: 1}}}},
		{"range without bounds", &CheckRequest{SourceID: "s1", Type: "accuracy", Rules: []RuleRequest{{Field: "a", Condition: "range", Threshold: 1}}}},
		{"range min > max", &CheckRequest{SourceID: "s1", Type: "accuracy", Rules: []RuleRequest{{Field: "a", Condition: "range", Threshold: 1, Params: map[string]interface{}{"min": 5, "max": 1}}}}},
		{"bad regex", &CheckRequest{SourceID: "s1", Type: "validity", Rules: []RuleRequest{{Field: "a", Condition: "regex", Threshold: 1, Params: map[string]interface{}{"pattern": "("}}}}},
		{"bad duration", &CheckRequest{SourceID: "s1", Type: "timeliness", Rules: []RuleRequest{{Field: "a", Condition: "fresh_within", Threshold: 1, Params: map[string]interface{}{"duration": "-1h"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Create(context.Background(), "t1", tt.req)
			require.Error(t, err)
			require.True(t, errorj.IsValidation(err), err.Error())
		})
	}

	_, err := engine.Create(context.Background(), "t1", &CheckRequest{SourceID: "unknown", Type: "completeness", Rules: []RuleRequest{{Field: "a", Condition: "not_null", Threshold: 1}}})
	require.True(t, errorj.IsNotFound(err))

	checks, err := storage.ListChecks(context.Background(), "t1", "")
	require.NoError(t, err)
	require.Empty(t, checks)
}

func TestDeleteCheck(t *testing.T) {
	ctx := context.Background()
	engine, _, sink := newTestEngine(t, nil)
	check, err := engine.Create(ctx, "t1", &CheckRequest{SourceID: "s1", Type: "consistency", Rules: []RuleRequest{{Field: "a", Condition: "unique", Threshold: 100}}})
	require.NoError(t, err)

	require.True(t, errorj.IsNotFound(engine.Delete(ctx, "t2", check.ID)))
	require.NoError(t, engine.Delete(ctx, "t1", check.ID))
	require.Len(t, sink.Find(entities.QualityCheckDeleted, check.ID), 1)

	_, err = engine.Run(ctx, "t1", check.ID)
	require.True(t, errorj.IsNotFound(err))
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0.0, Clamp(-3))
	require.Equal(t, 0.0, Clamp(math.NaN()))
	require.Equal(t, 100.0, Clamp(1000))
	require.Equal(t, 42.5, Clamp(42.5))
}

func TestEmptyTenantIsRejected(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, nil)

	_, err := engine.Get(ctx, " ", "c1")
	require.True(t, errorj.IsValidation(err))

	_, err = engine.List(ctx, "", "s1")
	require.True(t, errorj.IsValidation(err))

	_, err = engine.Metrics(ctx, "", "s1", 10)
	require.True(t, errorj.IsValidation(err))

	_, err = engine.Run(ctx, "", "c1")
	require.True(t, errorj.IsValidation(err))
}
