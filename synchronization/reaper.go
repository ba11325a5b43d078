package synchronization

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/safego"
	"github.com/ledgerops/warehouse/timestamp"
	"go.uber.org/atomic"
)

//StalledRunsReaper closes runs which are stuck in syncing/running status longer than threshold
//(e.g. after a crashed worker or instance restart). It competes with executors for the execution row of the run
type StalledRunsReaper struct {
	storage   meta.Storage
	lineage   LineageRecorder
	threshold time.Duration
	interval  time.Duration

	closed    *atomic.Bool
	done      chan struct{}
	execution *safego.Execution
}

//NewStalledRunsReaper returns reaper which closes runs older than job deadline + grace period
func NewStalledRunsReaper(storage meta.Storage, lineage LineageRecorder, deadline, grace, interval time.Duration) *StalledRunsReaper {
	return &StalledRunsReaper{
		storage:   storage,
		lineage:   lineage,
		threshold: StalledThreshold(deadline, grace),
		interval:  interval,
		closed:    atomic.NewBool(false),
		done:      make(chan struct{}),
	}
}

//StalledThreshold is the age after which a syncing/running run is considered abandoned
func StalledThreshold(deadline, grace time.Duration) time.Duration {
	return deadline + grace
}

//Start runs reaping goroutine
func (r *StalledRunsReaper) Start() {
	r.execution = safego.RunWithRestart(func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			if r.closed.Load() {
				return
			}

			if _, err := r.Reap(context.Background()); err != nil {
				logging.SystemErrorf("Error reaping stalled runs: %v", err)
			}

			select {
			case <-r.done:
				return
			case <-ticker.C:
			}
		}
	})
}

//Reap makes one pass and returns number of closed runs
func (r *StalledRunsReaper) Reap(ctx context.Context) (int, error) {
	olderThan := timestamp.Now().UTC().Add(-r.threshold)
	var multiErr error
	closed := 0

	stalledSources, err := r.storage.ListStalledSources(ctx, olderThan)
	if err != nil {
		multiErr = multierror.Append(multiErr, err)
	}
	for _, source := range stalledSources {
		job := &Job{ID: source.RunID, TenantID: source.TenantID, Kind: entities.SourceSyncKind, SourceID: source.ID, CreatedAt: source.StatusChangedAt}
		if r.closeStalled(job) {
			closed++
		}
	}

	stalledPipelines, err := r.storage.ListStalledPipelines(ctx, olderThan)
	if err != nil {
		multiErr = multierror.Append(multiErr, err)
	}
	for _, pipeline := range stalledPipelines {
		job := &Job{ID: pipeline.RunID, TenantID: pipeline.TenantID, Kind: entities.PipelineRunKind, SourceID: pipeline.SourceID,
			PipelineID: pipeline.ID, CreatedAt: pipeline.StatusChangedAt}
		if r.closeStalled(job) {
			closed++
		}
	}

	return closed, multiErr
}

func (r *StalledRunsReaper) closeStalled(job *Job) bool {
	taskLogger := NewTaskLogger(job.ID)
	closer := NewTaskCloser(job, taskLogger, r.storage, r.lineage)
	err := errorj.TimeoutError.New("run exceeded deadline and grace period of %s", r.threshold).
		WithProperty(errorj.TenantID, job.TenantID).WithProperty(errorj.ExecutionID, job.ID)
	return closer.CloseWithError(err, false)
}

func (r *StalledRunsReaper) Close() error {
	if r.closed.CAS(false, true) {
		if r.execution != nil {
			r.execution.Stop()
		}
		close(r.done)
	}
	return nil
}
