package synchronization

import (
	"fmt"
	"time"

	"github.com/ledgerops/warehouse/entities"
)

//Job is one dispatched unit of background work. ID is the run id and the execution id at the same time
type Job struct {
	ID         string
	TenantID   string
	Kind       entities.ExecutionKind
	SourceID   string
	PipelineID string
	JobType    entities.JobType
	Origin     entities.Origin
	Priority   int64
	CreatedAt  time.Time
}

//EntityID returns id of the source or the pipeline which is executed
func (j *Job) EntityID() string {
	if j.Kind == entities.PipelineRunKind {
		return j.PipelineID
	}
	return j.SourceID
}

//LockName is a coordination lock name which serializes runs of one entity across instances
func (j *Job) LockName() string {
	return fmt.Sprintf("%s_%s_%s", j.Kind, j.TenantID, j.EntityID())
}

//TaskAccepted is returned to the caller right after a job has been enqueued
type TaskAccepted struct {
	ExecutionID string                   `json:"execution_id"`
	Kind        entities.ExecutionKind   `json:"kind"`
	Status      entities.ExecutionStatus `json:"status"`
	AcceptedAt  time.Time                `json:"accepted_at"`
}
