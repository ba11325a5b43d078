package entities

import (
	"strings"
	"time"

	"github.com/ledgerops/warehouse/errorj"
)

type JobType string

const (
	FullSync        JobType = "full_sync"
	IncrementalSync JobType = "incremental_sync"
	ValidationJob   JobType = "validation"
	QualityCheckJob JobType = "quality_check"
)

var JobTypes = []JobType{FullSync, IncrementalSync, ValidationJob, QualityCheckJob}

//JobTypeFromString returns FullSync for empty value
func JobTypeFromString(value string) (JobType, error) {
	normalized := JobType(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return FullSync, nil
	}

	for _, jt := range JobTypes {
		if jt == normalized {
			return jt, nil
		}
	}

	return "", errorj.ValidationError.New("unknown job type: [%s]. Supported: %v", value, JobTypes)
}

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

func ExecutionStatusFromString(value string) (ExecutionStatus, error) {
	switch ExecutionStatus(strings.ToLower(strings.TrimSpace(value))) {
	case ExecutionPending:
		return ExecutionPending, nil
	case ExecutionRunning:
		return ExecutionRunning, nil
	case ExecutionCompleted:
		return ExecutionCompleted, nil
	case ExecutionFailed:
		return ExecutionFailed, nil
	default:
		return "", errorj.ValidationError.New("unknown execution status: [%s]", value)
	}
}

//ExecutionKind distinguishes source synchronizations from pipeline runs in the unified ledger
type ExecutionKind string

const (
	SourceSyncKind  ExecutionKind = "source_sync"
	PipelineRunKind ExecutionKind = "pipeline_run"
)

func ExecutionKindFromString(value string) (ExecutionKind, error) {
	switch ExecutionKind(strings.ToLower(strings.TrimSpace(value))) {
	case SourceSyncKind:
		return SourceSyncKind, nil
	case PipelineRunKind:
		return PipelineRunKind, nil
	default:
		return "", errorj.ValidationError.New("unknown execution kind: [%s]. Supported: [source_sync, pipeline_run]", value)
	}
}

//Origin is who triggered the run
type Origin string

const (
	ManualOrigin   Origin = "manual"
	ScheduleOrigin Origin = "schedule"
)

//Execution is a write-once ledger row of a source sync or a pipeline run
type Execution struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	Kind             ExecutionKind   `json:"kind"`
	SourceID         string          `json:"source_id"`
	PipelineID       string          `json:"pipeline_id,omitempty"`
	JobType          JobType         `json:"job_type,omitempty"`
	Origin           Origin          `json:"origin"`
	Status           ExecutionStatus `json:"status"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	DurationMs       int64           `json:"duration_ms"`
	RecordsProcessed int64           `json:"records_processed"`
	RecordsFailed    int64           `json:"records_failed"`
	Errors           []string        `json:"errors,omitempty"`
	RetryCount       int             `json:"retry_count"`
}
