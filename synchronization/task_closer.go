package synchronization

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/timestamp"
)

//LineageRecorder records advisory data flow facts of successful pipeline runs
type LineageRecorder interface {
	RecordPipeline(ctx context.Context, pipeline *entities.Pipeline) error
}

const (
	storageRetries       = 3
	storageRetryInterval = 50 * time.Millisecond
)

//TaskCloser is responsible for graceful job closing: the ledger row and the terminal status.
//The row is written first and only once per run (executor or stalled runs reaper), the status follows the row
type TaskCloser struct {
	job        *Job
	startedAt  time.Time
	retries    int
	taskLogger *TaskLogger
	storage    meta.Storage
	lineage    LineageRecorder
}

func NewTaskCloser(job *Job, taskLogger *TaskLogger, storage meta.Storage, lineage LineageRecorder) *TaskCloser {
	return &TaskCloser{job: job, startedAt: job.CreatedAt, taskLogger: taskLogger, storage: storage, lineage: lineage}
}

//TaskID returns execution ID
func (tc *TaskCloser) TaskID() string {
	return tc.job.ID
}

//Started sets the moment when the job has been taken by a worker
func (tc *TaskCloser) Started(at time.Time) {
	tc.startedAt = at
}

//Retried sets number of retries which have been made
func (tc *TaskCloser) Retried(retries int) {
	tc.retries = retries
}

//CloseWithError writes closing with error logs, sets error status and appends failed execution.
//Returns false if the run has been already closed
func (tc *TaskCloser) CloseWithError(err error, systemErr bool) bool {
	if systemErr {
		logging.SystemErrorf("[%s] %v", tc.job.ID, err)
	} else {
		tc.taskLogger.ERROR("FAILED: %v", err)
	}

	return tc.close(entities.ExecutionFailed, drivers.Result{}, errorMessages(err))
}

//CloseWithSuccess sets connected/idle status and appends completed execution (records failed counter may be > 0).
//Returns false if the run has been already closed
func (tc *TaskCloser) CloseWithSuccess(result drivers.Result) bool {
	if !tc.close(entities.ExecutionCompleted, result, nil) {
		return false
	}

	if tc.job.Kind == entities.PipelineRunKind && tc.lineage != nil {
		tc.recordLineage()
	}
	return true
}

func (tc *TaskCloser) close(status entities.ExecutionStatus, result drivers.Result, errs []string) bool {
	ctx := context.Background()
	finishedAt := timestamp.Now().UTC()
	if finishedAt.Before(tc.startedAt) {
		finishedAt = tc.startedAt
	}

	execution := &entities.Execution{
		ID:               tc.job.ID,
		TenantID:         tc.job.TenantID,
		Kind:             tc.job.Kind,
		SourceID:         tc.job.SourceID,
		PipelineID:       tc.job.PipelineID,
		JobType:          tc.job.JobType,
		Origin:           tc.job.Origin,
		Status:           status,
		StartedAt:        tc.startedAt,
		FinishedAt:       finishedAt,
		DurationMs:       finishedAt.Sub(tc.startedAt).Milliseconds(),
		RecordsProcessed: result.Processed,
		RecordsFailed:    result.Failed,
		Errors:           errs,
		RetryCount:       tc.retries,
	}

	//the row is keyed by run id: the closer whose insert succeeds owns the outcome
	err := retryStorage(func() error {
		err := tc.storage.SaveExecution(ctx, execution)
		if errors.Is(err, meta.ErrAlreadyExists) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, meta.ErrAlreadyExists) {
			tc.taskLogger.WARN("run has been already closed by another closer. Outcome [%s] is skipped", status)
			tc.restoreStatus(ctx)
			return false
		}
		logging.SystemErrorf("[%s] Error saving execution in meta.Storage: %v. %s [%s] stays in progress until stalled runs reaper closes it",
			tc.job.ID, err, tc.job.Kind, tc.job.EntityID())
		return false
	}

	err = retryStorage(func() error {
		won, err := tc.finish(ctx, status == entities.ExecutionCompleted, finishedAt)
		if err == nil && !won {
			logging.Debugf("[%s] terminal status of %s [%s] has been already set", tc.job.ID, tc.job.Kind, tc.job.EntityID())
		}
		return err
	})
	if err != nil {
		logging.SystemErrorf("[%s] Error finishing %s [%s] in meta.Storage: %v. Status will be restored from the execution row by stalled runs reaper",
			tc.job.ID, tc.job.Kind, tc.job.EntityID(), err)
	}

	kind := string(tc.job.Kind)
	metrics.JobDuration(kind, finishedAt.Sub(tc.startedAt).Seconds())
	if status == entities.ExecutionCompleted {
		metrics.JobSucceeded(kind)
	} else {
		metrics.JobFailed(kind)
	}

	return true
}

//restoreStatus sets the terminal status from the already written row. It is a no-op if the status is already terminal
func (tc *TaskCloser) restoreStatus(ctx context.Context) {
	existing, err := tc.storage.GetExecution(ctx, tc.job.TenantID, tc.job.ID)
	if err != nil {
		tc.taskLogger.WARN("error reading execution row: %v", err)
		return
	}

	restored, err := tc.finish(ctx, existing.Status == entities.ExecutionCompleted, existing.FinishedAt)
	if err != nil {
		tc.taskLogger.WARN("error restoring %s [%s] status: %v", tc.job.Kind, tc.job.EntityID(), err)
		return
	}
	if restored {
		tc.taskLogger.INFO("%s [%s] status has been restored from the execution row [%s]", tc.job.Kind, tc.job.EntityID(), existing.Status)
	}
}

func (tc *TaskCloser) finish(ctx context.Context, success bool, at time.Time) (bool, error) {
	if tc.job.Kind == entities.PipelineRunKind {
		status := entities.PipelineIdle
		if !success {
			status = entities.PipelineError
		}
		return tc.storage.FinishPipelineRun(ctx, tc.job.TenantID, tc.job.PipelineID, tc.job.ID, status, at)
	}

	status := entities.SourceConnected
	if !success {
		status = entities.SourceError
	}
	return tc.storage.FinishSourceRun(ctx, tc.job.TenantID, tc.job.SourceID, tc.job.ID, status, at)
}

func (tc *TaskCloser) recordLineage() {
	ctx := context.Background()
	pipeline, err := tc.storage.GetPipeline(ctx, tc.job.TenantID, tc.job.PipelineID)
	if err != nil {
		tc.taskLogger.WARN("lineage isn't recorded: %v", err)
		return
	}

	if err := tc.lineage.RecordPipeline(ctx, pipeline); err != nil {
		tc.taskLogger.WARN("error recording lineage: %v", err)
	}
}

//retryStorage retries transient meta.Storage errors a few times
func retryStorage(operation func() error) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = storageRetryInterval
	exponential.MaxInterval = 4 * storageRetryInterval
	exponential.MaxElapsedTime = 0
	return backoff.Retry(operation, backoff.WithMaxRetries(exponential, storageRetries))
}

//errorMessages flattens multierror into a list of messages
func errorMessages(err error) []string {
	if err == nil {
		return []string{"unknown error"}
	}

	var multiErr *multierror.Error
	if errors.As(err, &multiErr) && len(multiErr.Errors) > 0 {
		messages := make([]string, 0, len(multiErr.Errors))
		for _, e := range multiErr.Errors {
			messages = append(messages, e.Error())
		}
		return messages
	}

	return []string{err.Error()}
}
