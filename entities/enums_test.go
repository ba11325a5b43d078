package entities

import (
	"testing"

	"github.com/ledgerops/warehouse/errorj"
	"github.com/stretchr/testify/require"
)

func TestConnectorTypeFromString(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		expectedType   ConnectorType
		expectedEngine string
		expectedErr    bool
	}{
		{"plain type", "relational", RelationalConnector, "relational", false},
		{"postgresql alias", "postgresql", RelationalConnector, "postgresql", false},
		{"mongodb alias", " MongoDB ", DocumentConnector, "mongodb", false},
		{"snowflake alias", "snowflake", CloudWarehouseConnector, "snowflake", false},
		{"custom", "custom", CustomConnector, "custom", false},
		{"unknown", "ftp", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualType, actualEngine, err := ConnectorTypeFromString(tt.input)
			if tt.expectedErr {
				require.Error(t, err)
				require.True(t, errorj.IsValidation(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectedType, actualType)
			require.Equal(t, tt.expectedEngine, actualEngine)
		})
	}
}

func TestDefaults(t *testing.T) {
	mode, err := PipelineModeFromString("")
	require.NoError(t, err)
	require.Equal(t, BatchMode, mode)

	jobType, err := JobTypeFromString("")
	require.NoError(t, err)
	require.Equal(t, FullSync, jobType)

	_, err = StepKindFromString("pivot")
	require.True(t, errorj.IsValidation(err))

	condition, err := RuleConditionFromString("NOT_NULL")
	require.NoError(t, err)
	require.Equal(t, NotNullCondition, condition)
}

func TestPipelineClone(t *testing.T) {
	p := &Pipeline{ID: "p1", Steps: []Step{{Kind: FilterStep, Config: map[string]interface{}{"field": "a"}}}}
	clone := p.Clone()
	clone.Steps[0].Config["field"] = "b"
	clone.Steps = append(clone.Steps, Step{Kind: MapStep})

	require.Equal(t, "a", p.Steps[0].Config["field"])
	require.Len(t, p.Steps, 1)
}

func TestQualityCheckClone(t *testing.T) {
	check := &QualityCheck{ID: "c1", Rules: []QualityRule{{Field: "email", Condition: RegexCondition, Params: map[string]interface{}{"pattern": "@"}}}}
	clone := check.Clone()
	clone.Rules[0].Params["pattern"] = ".*"
	clone.Rules[0].Threshold = 50
	clone.Rules = append(clone.Rules, QualityRule{Field: "id"})

	require.Equal(t, "@", check.Rules[0].Params["pattern"])
	require.Zero(t, check.Rules[0].Threshold)
	require.Len(t, check.Rules, 1)
}
