package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
)

const (
	DefaultHistoryLimit = 100
	MaxTrendDays        = 366

	day = 24 * time.Hour
)

//Filter is a history query. Zero values mean "any"
type Filter struct {
	SourceID   string
	PipelineID string
	Kind       entities.ExecutionKind
	Status     entities.ExecutionStatus
	Limit      int
}

//TrendBucket is one UTC day of executions and quality samples
type TrendBucket struct {
	Day              string  `json:"day"`
	Executions       int     `json:"executions"`
	Completed        int     `json:"completed"`
	Failed           int     `json:"failed"`
	RecordsProcessed int64   `json:"records_processed"`
	RecordsFailed    int64   `json:"records_failed"`
	QualityChecks    int     `json:"quality_checks"`
	AvgQualityScore  float64 `json:"avg_quality_score"`
}

//Ledger is a read-only view over executions and quality metrics. Rows are written by executors and the quality engine
type Ledger struct {
	storage meta.Storage
}

func NewLedger(storage meta.Storage) *Ledger {
	return &Ledger{storage: storage}
}

//History returns executions newest first
func (l *Ledger) History(ctx context.Context, tenantID string, filter Filter) ([]*entities.Execution, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	executions, err := l.storage.ListExecutions(ctx, tenantID, meta.ExecutionFilter{
		Kind:       filter.Kind,
		SourceID:   filter.SourceID,
		PipelineID: filter.PipelineID,
		Status:     filter.Status,
		Limit:      limit,
	})
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing executions")
	}
	return executions, nil
}

func (l *Ledger) Get(ctx context.Context, tenantID, executionID string) (*entities.Execution, error) {
	execution, err := l.storage.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, meta.Classify(err, "execution", executionID)
	}
	return execution, nil
}

//Trends returns exactly `days` UTC day buckets, oldest first, ending with today. Empty days have zeros
func (l *Ledger) Trends(ctx context.Context, tenantID string, days int) ([]TrendBucket, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}
	if days <= 0 || days > MaxTrendDays {
		return nil, errorj.ValidationError.New("'days' must be in [1, %d], got %d", MaxTrendDays, days)
	}

	end := timestamp.StartOfDay(timestamp.Now().UTC()).Add(day)
	start := end.Add(-time.Duration(days) * day)

	buckets := make([]TrendBucket, days)
	for i := range buckets {
		buckets[i].Day = start.Add(time.Duration(i) * day).Format(timestamp.DashDayLayout)
	}

	executions, err := l.storage.ListExecutions(ctx, tenantID, meta.ExecutionFilter{Start: start, End: end})
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing executions")
	}
	for _, execution := range executions {
		i, ok := bucketIndex(start, days, execution.StartedAt)
		if !ok {
			continue
		}
		bucket := &buckets[i]
		bucket.Executions++
		switch execution.Status {
		case entities.ExecutionCompleted:
			bucket.Completed++
		case entities.ExecutionFailed:
			bucket.Failed++
		}
		bucket.RecordsProcessed += execution.RecordsProcessed
		bucket.RecordsFailed += execution.RecordsFailed
	}

	qualityMetrics, err := l.storage.ListMetrics(ctx, tenantID, meta.MetricFilter{Start: start, End: end})
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing quality metrics")
	}
	scores := make([]float64, days)
	for _, metric := range qualityMetrics {
		i, ok := bucketIndex(start, days, metric.CreatedAt)
		if !ok {
			continue
		}
		buckets[i].QualityChecks++
		scores[i] += metric.Score
	}
	for i := range buckets {
		if buckets[i].QualityChecks > 0 {
			buckets[i].AvgQualityScore = scores[i] / float64(buckets[i].QualityChecks)
		}
	}

	return buckets, nil
}

func bucketIndex(start time.Time, days int, t time.Time) (int, bool) {
	if t.Before(start) {
		return 0, false
	}
	i := int(t.UTC().Sub(start) / day)
	if i >= days {
		return 0, false
	}
	return i, true
}
