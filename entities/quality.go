package entities

import (
	"strings"
	"time"

	"github.com/ledgerops/warehouse/errorj"
)

type CheckType string

const (
	CompletenessCheck CheckType = "completeness"
	AccuracyCheck     CheckType = "accuracy"
	ConsistencyCheck  CheckType = "consistency"
	TimelinessCheck   CheckType = "timeliness"
	ValidityCheck     CheckType = "validity"
)

var CheckTypes = []CheckType{CompletenessCheck, AccuracyCheck, ConsistencyCheck, TimelinessCheck, ValidityCheck}

func CheckTypeFromString(value string) (CheckType, error) {
	normalized := CheckType(strings.ToLower(strings.TrimSpace(value)))
	for _, ct := range CheckTypes {
		if ct == normalized {
			return ct, nil
		}
	}

	return "", errorj.ValidationError.New("unknown check type: [%s]. Supported: %v", value, CheckTypes)
}

type RuleCondition string

const (
	NotNullCondition     RuleCondition = "not_null"
	UniqueCondition      RuleCondition = "unique"
	RangeCondition       RuleCondition = "range"
	RegexCondition       RuleCondition = "regex"
	FreshWithinCondition RuleCondition = "fresh_within"
	CustomCondition      RuleCondition = "custom"
)

var RuleConditions = []RuleCondition{NotNullCondition, UniqueCondition, RangeCondition, RegexCondition, FreshWithinCondition, CustomCondition}

func RuleConditionFromString(value string) (RuleCondition, error) {
	normalized := RuleCondition(strings.ToLower(strings.TrimSpace(value)))
	for _, rc := range RuleConditions {
		if rc == normalized {
			return rc, nil
		}
	}

	return "", errorj.ValidationError.New("unknown rule condition: [%s]. Supported: %v", value, RuleConditions)
}

//QualityRule is a single expectation: Threshold is the minimum pass-rate in percents
type QualityRule struct {
	Field     string                 `json:"field"`
	Condition RuleCondition          `json:"condition"`
	Threshold float64                `json:"threshold"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

type QualityCheck struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenant_id"`
	SourceID  string        `json:"source_id"`
	Name      string        `json:"name,omitempty"`
	Type      CheckType     `json:"type"`
	Rules     []QualityRule `json:"rules"`
	Schedule  string        `json:"schedule,omitempty"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

//Clone returns a deep copy: rules and their params aren't shared
func (c *QualityCheck) Clone() *QualityCheck {
	clone := *c
	if c.Rules != nil {
		clone.Rules = make([]QualityRule, len(c.Rules))
		for i, rule := range c.Rules {
			rule.Params = copyMap(rule.Params)
			clone.Rules[i] = rule
		}
	}
	return &clone
}

//QualityMetric is an immutable sample produced by running a QualityCheck
type QualityMetric struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	SourceID   string                 `json:"source_id"`
	CheckID    string                 `json:"check_id"`
	MetricType CheckType              `json:"metric_type"`
	Score      float64                `json:"score"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
