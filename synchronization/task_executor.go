package synchronization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/locks"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/queue"
	"github.com/ledgerops/warehouse/safego"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

const (
	monitoringInterval = 20 * time.Second
	busyPoolInterval   = 100 * time.Millisecond
)

//LockCreator creates coordination locks (coordination.Service)
type LockCreator interface {
	CreateLock(name string) locks.Lock
}

type RetryConfig struct {
	//MaxAttempts includes the first attempt
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type ExecutorConfig struct {
	PoolSize int
	//TenantLimit is a maximum number of jobs of one tenant which are executed simultaneously. 0 means unlimited
	TenantLimit int64
	//Timeout is a deadline of one job including retries. 0 means no deadline
	Timeout time.Duration
	Retry   RetryConfig
}

//TaskExecutor polls jobs from the queue and runs them in the goroutines pool
type TaskExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc

	config      ExecutorConfig
	workersPool *ants.PoolWithFunc
	queue       queue.Queue
	storage     meta.Storage
	locks       LockCreator
	runners     map[entities.ExecutionKind]Runner
	lineage     LineageRecorder

	tenantsMutex     sync.Mutex
	tenantSemaphores map[string]*semaphore.Weighted
	//deferred jobs of tenants at their limit. They are requeued when a tenant job finishes
	deferred map[string][]*Job

	executions sync.WaitGroup
	closed     *atomic.Bool
	background []*safego.Execution
}

//NewTaskExecutor returns TaskExecutor and starts 2 goroutines (monitoring and queue observer)
func NewTaskExecutor(config ExecutorConfig, jobsQueue queue.Queue, storage meta.Storage, lockCreator LockCreator,
	runners map[entities.ExecutionKind]Runner, lineage LineageRecorder) (*TaskExecutor, error) {
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got: %d", config.PoolSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	executor := &TaskExecutor{
		ctx:              ctx,
		cancel:           cancel,
		config:           config,
		queue:            jobsQueue,
		storage:          storage,
		locks:            lockCreator,
		runners:          runners,
		lineage:          lineage,
		tenantSemaphores: map[string]*semaphore.Weighted{},
		deferred:         map[string][]*Job{},
		closed:           atomic.NewBool(false),
	}

	pool, err := ants.NewPoolWithFunc(config.PoolSize, executor.execute, ants.WithPanicHandler(func(value interface{}) {
		logging.SystemErrorf("Panic in jobs pool: %v", value)
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("Error creating goroutines pool: %v", err)
	}

	executor.workersPool = pool
	executor.startMonitoring()
	executor.startObserver()

	return executor, nil
}

//startMonitoring run goroutine for setting pool size metrics every 20 seconds
func (te *TaskExecutor) startMonitoring() {
	te.background = append(te.background, safego.RunWithRestart(func() {
		ticker := time.NewTicker(monitoringInterval)
		defer ticker.Stop()
		for {
			if te.closed.Load() {
				break
			}

			metrics.RunningJobsGoroutines(te.workersPool.Running())
			metrics.FreeJobsGoroutines(te.workersPool.Free())
			metrics.JobsQueueSize(te.queue.Size())

			select {
			case <-te.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}))
}

//startObserver run goroutine for polling from the queue and put job to workers pool
func (te *TaskExecutor) startObserver() {
	te.background = append(te.background, safego.RunWithRestart(func() {
		for {
			if te.closed.Load() {
				break
			}

			if te.workersPool.Free() == 0 {
				time.Sleep(busyPoolInterval)
				continue
			}

			item, err := te.queue.Pop(te.ctx)
			if err != nil {
				if errors.Is(err, queue.ErrQueueClosed) || te.ctx.Err() != nil {
					return
				}
				logging.SystemErrorf("Error polling job: %v", err)
				time.Sleep(time.Second)
				continue
			}

			job, ok := item.(*Job)
			if !ok {
				logging.SystemErrorf("Job has unknown type: %T", item)
				continue
			}

			if !te.acquireTenant(job) {
				continue
			}

			te.executions.Add(1)
			if err := te.workersPool.Invoke(job); err != nil {
				te.executions.Done()
				te.releaseTenant(job.TenantID)
				NewTaskCloser(job, NewTaskLogger(job.ID), te.storage, te.lineage).CloseWithError(fmt.Errorf("Error running job: %v", err), true)
			}
		}
	}))
}

//execute runs one job and always closes it: exactly one terminal status and ledger row is written by the CAS winner
func (te *TaskExecutor) execute(i interface{}) {
	job, ok := i.(*Job)
	if !ok {
		logging.SystemErrorf("Job has unknown type: %T", i)
		return
	}
	defer te.executions.Done()
	defer te.releaseTenant(job.TenantID)

	taskLogger := NewTaskLogger(job.ID)
	if !te.isCurrentRun(job, taskLogger) {
		return
	}

	taskCloser := NewTaskCloser(job, taskLogger, te.storage, te.lineage)
	taskCloser.Started(timestamp.Now().UTC())
	metrics.JobStarted(string(job.Kind))
	taskLogger.INFO("Running %s of [%s] (tenant: %s, origin: %s)...", job.Kind, job.EntityID(), job.TenantID, job.Origin)

	runner, ok := te.runners[job.Kind]
	if !ok {
		taskCloser.CloseWithError(errorj.ValidationError.New("unknown job kind: [%s]", job.Kind), true)
		return
	}

	lock := te.locks.CreateLock(job.LockName())
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, locks.ErrAlreadyLocked) {
			taskCloser.CloseWithError(errorj.ConflictError.New("previous run still executing"), false)
			return
		}
		taskCloser.CloseWithError(errorj.Decorate(err, "error getting lock [%s]", job.LockName()), true)
		return
	}
	defer lock.Unlock()

	ctx := te.ctx
	if te.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(te.ctx, te.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, retries, err := te.run(ctx, runner, job, taskLogger)
	taskCloser.Retried(retries)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errorj.TimeoutError.Wrap(err, "job exceeded deadline of %s", te.config.Timeout).WithProperty(errorj.ExecutionID, job.ID)
		}
		taskCloser.CloseWithError(err, false)
		return
	}

	end := time.Since(start)
	taskLogger.INFO("FINISHED SUCCESSFULLY in [%.2f] seconds (~ %.2f minutes): processed [%d] failed [%d] retries [%d]",
		end.Seconds(), end.Minutes(), result.Processed, result.Failed, retries)
	taskCloser.CloseWithSuccess(result)
}

//isCurrentRun returns false if the run of the job has been already closed (e.g. by stalled runs reaper) or replaced.
//Such job is skipped without a ledger row. On storage errors the job is executed: the row insert rejects duplicates
func (te *TaskExecutor) isCurrentRun(job *Job, taskLogger *TaskLogger) bool {
	var inProgress bool
	var runID string
	if job.Kind == entities.PipelineRunKind {
		pipeline, err := te.storage.GetPipeline(te.ctx, job.TenantID, job.PipelineID)
		if err != nil {
			return te.checkFailed(job, taskLogger, err)
		}
		inProgress, runID = pipeline.Status == entities.PipelineRunning, pipeline.RunID
	} else {
		source, err := te.storage.GetSource(te.ctx, job.TenantID, job.SourceID)
		if err != nil {
			return te.checkFailed(job, taskLogger, err)
		}
		inProgress, runID = source.Status == entities.SourceSyncing, source.RunID
	}

	if !inProgress || runID != job.ID {
		taskLogger.WARN("%s of [%s] is skipped: the run has been already closed (current run: [%s])", job.Kind, job.EntityID(), runID)
		metrics.JobSkipped(string(job.Kind))
		return false
	}
	return true
}

func (te *TaskExecutor) checkFailed(job *Job, taskLogger *TaskLogger, err error) bool {
	if errors.Is(err, meta.ErrNotFound) {
		taskLogger.WARN("%s of [%s] is skipped: %s has been deleted", job.Kind, job.EntityID(), job.EntityID())
		metrics.JobSkipped(string(job.Kind))
		return false
	}
	taskLogger.WARN("error checking run status: %v", err)
	return true
}

//run executes runner with bounded retries of transient errors. Returns result and number of retries
func (te *TaskExecutor) run(ctx context.Context, runner Runner, job *Job, taskLogger *TaskLogger) (drivers.Result, int, error) {
	attempts := 0
	var result drivers.Result
	operation := func() error {
		attempts++
		var err error
		result, err = te.invoke(ctx, runner, job, taskLogger)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil || !errorj.IsRetryable(err) {
			return backoff.Permanent(err)
		}

		taskLogger.WARN("attempt #%d failed with transient error: %v", attempts, err)
		return err
	}

	notify := func(err error, next time.Duration) {
		metrics.JobRetried(string(job.Kind))
		taskLogger.INFO("will be retried in %s", next)
	}

	err := backoff.RetryNotify(operation, te.backOff(ctx), notify)
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	return result, retries, err
}

func (te *TaskExecutor) backOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	if te.config.Retry.InitialInterval > 0 {
		exponential.InitialInterval = te.config.Retry.InitialInterval
	}
	if te.config.Retry.MaxInterval > 0 {
		exponential.MaxInterval = te.config.Retry.MaxInterval
	}
	//attempts and the job deadline bound retrying
	exponential.MaxElapsedTime = 0

	maxRetries := te.config.Retry.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(maxRetries)), ctx)
}

//invoke runs one attempt and returns as soon as the deadline is exceeded even if the runner ignores the context
func (te *TaskExecutor) invoke(ctx context.Context, runner Runner, job *Job, taskLogger *TaskLogger) (drivers.Result, error) {
	type outcome struct {
		result drivers.Result
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.SystemErrorf("[%s] panic in %s runner: %v", job.ID, job.Kind, r)
				done <- outcome{err: errorj.ExecutionError.New("runner panic: %v", r)}
			}
		}()

		result, err := runner.Execute(ctx, job, taskLogger)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return drivers.Result{}, ctx.Err()
	}
}

//acquireTenant returns false if the tenant is at its limit. Such job is deferred until a tenant job finishes
func (te *TaskExecutor) acquireTenant(job *Job) bool {
	if te.config.TenantLimit <= 0 {
		return true
	}

	te.tenantsMutex.Lock()
	defer te.tenantsMutex.Unlock()

	sem, ok := te.tenantSemaphores[job.TenantID]
	if !ok {
		sem = semaphore.NewWeighted(te.config.TenantLimit)
		te.tenantSemaphores[job.TenantID] = sem
	}

	if sem.TryAcquire(1) {
		return true
	}

	te.deferred[job.TenantID] = append(te.deferred[job.TenantID], job)
	logging.Debugf("[%s] tenant [%s] is at its limit of %d jobs. Job is deferred", job.ID, job.TenantID, te.config.TenantLimit)
	return false
}

//releaseTenant frees tenant slot and requeues one deferred job of the tenant
func (te *TaskExecutor) releaseTenant(tenantID string) {
	if te.config.TenantLimit <= 0 {
		return
	}

	te.tenantsMutex.Lock()
	if sem, ok := te.tenantSemaphores[tenantID]; ok {
		sem.Release(1)
	}

	var requeued *Job
	if jobs := te.deferred[tenantID]; len(jobs) > 0 {
		requeued = jobs[0]
		if len(jobs) == 1 {
			delete(te.deferred, tenantID)
		} else {
			te.deferred[tenantID] = jobs[1:]
		}
	}
	te.tenantsMutex.Unlock()

	if requeued == nil {
		return
	}

	if err := te.queue.Push(requeued, requeued.Priority); err != nil {
		NewTaskCloser(requeued, NewTaskLogger(requeued.ID), te.storage, te.lineage).CloseWithError(fmt.Errorf("Error requeueing job: %v", err), true)
	}
}

//Close stops polling, cancels running jobs and waits until they are closed
func (te *TaskExecutor) Close() error {
	if !te.closed.CAS(false, true) {
		return nil
	}

	for _, execution := range te.background {
		execution.Stop()
	}
	te.cancel()
	te.executions.Wait()
	te.workersPool.Release()
	return nil
}
