package entities

import (
	"strings"
	"time"

	"github.com/ledgerops/warehouse/errorj"
)

type PipelineStatus string

const (
	PipelineIdle    PipelineStatus = "idle"
	PipelineRunning PipelineStatus = "running"
	PipelineError   PipelineStatus = "error"
)

//PipelineMode distinguishes scheduled batch pipelines from continuously running ones
type PipelineMode string

const (
	BatchMode     PipelineMode = "batch"
	StreamingMode PipelineMode = "streaming"
)

//PipelineModeFromString returns BatchMode for empty value
func PipelineModeFromString(value string) (PipelineMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(BatchMode):
		return BatchMode, nil
	case string(StreamingMode):
		return StreamingMode, nil
	default:
		return "", errorj.ValidationError.New("unknown pipeline mode: [%s]. Supported: [batch, streaming]", value)
	}
}

type StepKind string

const (
	FilterStep    StepKind = "filter"
	MapStep       StepKind = "map"
	AggregateStep StepKind = "aggregate"
	JoinStep      StepKind = "join"
	CustomStep    StepKind = "custom"
)

var StepKinds = []StepKind{FilterStep, MapStep, AggregateStep, JoinStep, CustomStep}

func StepKindFromString(value string) (StepKind, error) {
	normalized := StepKind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range StepKinds {
		if kind == normalized {
			return kind, nil
		}
	}

	return "", errorj.ValidationError.New("unknown step kind: [%s]. Supported: %v", value, StepKinds)
}

//Step is one transformation of the pipeline. Config is decoded by the step's transformer
type Step struct {
	Kind   StepKind               `json:"kind"`
	Name   string                 `json:"name,omitempty"`
	Config map[string]interface{} `json:"config,omitempty"`
}

//Pipeline is an ordered chain of steps applied to data drawn from exactly one source
type Pipeline struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	SourceID    string       `json:"source_id"`
	Name        string       `json:"name"`
	Steps       []Step       `json:"steps"`
	Schedule    string       `json:"schedule,omitempty"`
	Enabled     bool         `json:"enabled"`
	Mode        PipelineMode `json:"mode"`
	Destination string       `json:"destination,omitempty"`

	//Active is toggled by streaming pause/resume and never affects Status
	Active          bool           `json:"active"`
	Status          PipelineStatus `json:"status"`
	RunID           string         `json:"run_id,omitempty"`
	StatusChangedAt time.Time      `json:"status_changed_at"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

//Clone returns a copy which is safe to modify
func (p *Pipeline) Clone() *Pipeline {
	clone := *p
	if p.Steps != nil {
		clone.Steps = make([]Step, len(p.Steps))
		for i, step := range p.Steps {
			clone.Steps[i] = Step{Kind: step.Kind, Name: step.Name, Config: copyMap(step.Config)}
		}
	}
	if p.LastRunAt != nil {
		lastRunAt := *p.LastRunAt
		clone.LastRunAt = &lastRunAt
	}
	return &clone
}
