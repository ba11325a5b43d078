package streaming

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/timestamp"
)

const (
	DefaultWindow     = time.Minute
	DefaultMaxSamples = 1000

	pipelineEntity = "pipeline"
)

//Monitor aggregates telemetry of streaming pipelines over a sliding window.
//Samples are kept in memory only and are lost on restart
type Monitor struct {
	storage    meta.Storage
	window     time.Duration
	maxSamples int

	mutex   sync.RWMutex
	samples map[string][]entities.StreamingSample
}

func NewMonitor(storage meta.Storage, window time.Duration, maxSamples int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Monitor{
		storage:    storage,
		window:     window,
		maxSamples: maxSamples,
		samples:    map[string][]entities.StreamingSample{},
	}
}

//Observe puts the sample into the pipeline window. Samples without time are stamped with now.
//The pipeline must be a streaming pipeline of the tenant
func (m *Monitor) Observe(ctx context.Context, tenantID, pipelineID string, sample entities.StreamingSample) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(pipelineID) == "" {
		return errorj.ValidationError.New("tenant id and pipeline id are required")
	}
	if sample.Records < 0 || sample.Failed < 0 || sample.LatencyMs < 0 {
		return errorj.ValidationError.New("'records', 'failed' and 'latency_ms' can't be negative")
	}
	if _, err := m.streamingPipeline(ctx, tenantID, pipelineID, "accept samples"); err != nil {
		return err
	}

	now := timestamp.Now().UTC()
	if sample.At.IsZero() {
		sample.At = now
	}

	key := key(tenantID, pipelineID)

	m.mutex.Lock()
	window := append(m.samples[key], sample)
	window = m.evict(window, now)
	if len(window) > m.maxSamples {
		window = window[len(window)-m.maxSamples:]
	}
	m.samples[key] = window
	m.mutex.Unlock()

	metrics.StreamingObserved(tenantID, sample.Records, sample.Failed)
	return nil
}

//Status returns live figures of all streaming pipelines of the tenant ordered as the pipeline repository returns them
func (m *Monitor) Status(ctx context.Context, tenantID string) ([]entities.StreamingStatus, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	pipelines, err := m.storage.ListPipelines(ctx, tenantID, "")
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing pipelines")
	}

	now := timestamp.Now().UTC()
	result := []entities.StreamingStatus{}
	for _, pipeline := range pipelines {
		if pipeline.Mode != entities.StreamingMode {
			continue
		}

		status := entities.StreamingStatus{PipelineID: pipeline.ID, Name: pipeline.Name, Active: pipeline.Active}
		m.aggregate(&status, tenantID, pipeline.ID, now)
		result = append(result, status)
	}
	return result, nil
}

func (m *Monitor) Pause(ctx context.Context, tenantID, pipelineID string) (*entities.Pipeline, error) {
	return m.setActive(ctx, tenantID, pipelineID, false)
}

func (m *Monitor) Resume(ctx context.Context, tenantID, pipelineID string) (*entities.Pipeline, error) {
	return m.setActive(ctx, tenantID, pipelineID, true)
}

//Forget drops samples of a removed pipeline
func (m *Monitor) Forget(tenantID, pipelineID string) {
	m.mutex.Lock()
	delete(m.samples, key(tenantID, pipelineID))
	m.mutex.Unlock()
}

func (m *Monitor) setActive(ctx context.Context, tenantID, pipelineID string, active bool) (*entities.Pipeline, error) {
	pipeline, err := m.streamingPipeline(ctx, tenantID, pipelineID, "be paused or resumed")
	if err != nil {
		return nil, err
	}

	if err := m.storage.SetPipelineActive(ctx, tenantID, pipelineID, active); err != nil {
		return nil, meta.Classify(err, pipelineEntity, pipelineID)
	}
	logging.Infof("[%s] streaming pipeline [%s] active: %t", tenantID, pipelineID, active)

	pipeline.Active = active
	return pipeline, nil
}

//streamingPipeline returns the tenant pipeline. Batch pipelines are rejected with a validation error
func (m *Monitor) streamingPipeline(ctx context.Context, tenantID, pipelineID, action string) (*entities.Pipeline, error) {
	pipeline, err := m.storage.GetPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		return nil, meta.Classify(err, pipelineEntity, pipelineID)
	}
	if pipeline.Mode != entities.StreamingMode {
		return nil, errorj.ValidationError.New("pipeline [%s] is a batch pipeline: only streaming pipelines can %s", pipelineID, action)
	}
	return pipeline, nil
}

//aggregate computes throughput in records/sec over the whole window, average latency and error rate in [0,1]
func (m *Monitor) aggregate(status *entities.StreamingStatus, tenantID, pipelineID string, now time.Time) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var records, failed int64
	var latency float64
	threshold := now.Add(-m.window)
	for _, sample := range m.samples[key(tenantID, pipelineID)] {
		if sample.At.Before(threshold) {
			continue
		}
		status.Samples++
		records += sample.Records
		failed += sample.Failed
		latency += sample.LatencyMs
	}

	if status.Samples == 0 {
		return
	}
	status.Throughput = float64(records) / m.window.Seconds()
	status.AvgLatencyMs = latency / float64(status.Samples)
	if total := records + failed; total > 0 {
		status.ErrorRate = float64(failed) / float64(total)
	}
}

//evict drops samples which are older than the window. Samples are mostly in time order
func (m *Monitor) evict(window []entities.StreamingSample, now time.Time) []entities.StreamingSample {
	threshold := now.Add(-m.window)
	kept := window[:0]
	for _, sample := range window {
		if !sample.At.Before(threshold) {
			kept = append(kept, sample)
		}
	}
	return kept
}

func key(tenantID, pipelineID string) string {
	return tenantID + "/" + pipelineID
}
