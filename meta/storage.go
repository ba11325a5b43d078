package meta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/spf13/viper"
)

const (
	InMemoryType = "inmemory"
	RedisType    = "redis"
	PostgresType = "postgres"
)

var (
	ErrNotFound       = errors.New("entity wasn't found")
	ErrAlreadyRunning = errors.New("entity is already in progress")
	ErrAlreadyExists  = errors.New("entity already exists")
)

//SourceRepository persists sources. Status is changed only with Begin/Finish run operations
type SourceRepository interface {
	CreateSource(ctx context.Context, source *entities.Source) error
	//UpdateSource overwrites declarative fields only (status fields are kept as is)
	UpdateSource(ctx context.Context, source *entities.Source) error
	GetSource(ctx context.Context, tenantID, id string) (*entities.Source, error)
	ListSources(ctx context.Context, tenantID string) ([]*entities.Source, error)
	ListAllSources(ctx context.Context) ([]*entities.Source, error)
	//DeleteSource returns ErrAlreadyRunning if the source is syncing
	DeleteSource(ctx context.Context, tenantID, id string) error

	//BeginSourceRun sets syncing status if the current one isn't syncing. Returns ErrAlreadyRunning otherwise
	BeginSourceRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Source, error)
	//FinishSourceRun sets terminal status only if the source is still syncing with the same runID
	FinishSourceRun(ctx context.Context, tenantID, id, runID string, status entities.SourceStatus, at time.Time) (bool, error)
	ListStalledSources(ctx context.Context, olderThan time.Time) ([]*entities.Source, error)
}

type PipelineRepository interface {
	CreatePipeline(ctx context.Context, pipeline *entities.Pipeline) error
	UpdatePipeline(ctx context.Context, pipeline *entities.Pipeline) error
	GetPipeline(ctx context.Context, tenantID, id string) (*entities.Pipeline, error)
	//ListPipelines returns all tenant pipelines or only pipelines of the source if sourceID isn't empty
	ListPipelines(ctx context.Context, tenantID, sourceID string) ([]*entities.Pipeline, error)
	ListAllPipelines(ctx context.Context) ([]*entities.Pipeline, error)
	DeletePipeline(ctx context.Context, tenantID, id string) error
	SetPipelineActive(ctx context.Context, tenantID, id string, active bool) error

	BeginPipelineRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Pipeline, error)
	FinishPipelineRun(ctx context.Context, tenantID, id, runID string, status entities.PipelineStatus, at time.Time) (bool, error)
	ListStalledPipelines(ctx context.Context, olderThan time.Time) ([]*entities.Pipeline, error)
}

type QualityRepository interface {
	CreateCheck(ctx context.Context, check *entities.QualityCheck) error
	GetCheck(ctx context.Context, tenantID, id string) (*entities.QualityCheck, error)
	ListChecks(ctx context.Context, tenantID, sourceID string) ([]*entities.QualityCheck, error)
	ListAllChecks(ctx context.Context) ([]*entities.QualityCheck, error)
	DeleteCheck(ctx context.Context, tenantID, id string) error

	SaveMetric(ctx context.Context, metric *entities.QualityMetric) error
	//ListMetrics returns samples newest first
	ListMetrics(ctx context.Context, tenantID string, filter MetricFilter) ([]*entities.QualityMetric, error)
}

type ExecutionRepository interface {
	//SaveExecution appends a ledger row. Returns ErrAlreadyExists if the row has been already written
	SaveExecution(ctx context.Context, execution *entities.Execution) error
	GetExecution(ctx context.Context, tenantID, id string) (*entities.Execution, error)
	//ListExecutions returns rows newest first
	ListExecutions(ctx context.Context, tenantID string, filter ExecutionFilter) ([]*entities.Execution, error)
}

type LineageRepository interface {
	AppendEdge(ctx context.Context, edge *entities.LineageEdge) error
	ListEdges(ctx context.Context, tenantID string) ([]*entities.LineageEdge, error)
}

//Storage is a persistence layer for all warehouse entities
type Storage interface {
	io.Closer

	SourceRepository
	PipelineRepository
	QualityRepository
	ExecutionRepository
	LineageRepository

	Type() string
}

//ExecutionFilter is a ledger query. Zero values mean "any"
type ExecutionFilter struct {
	Kind       entities.ExecutionKind
	SourceID   string
	PipelineID string
	Status     entities.ExecutionStatus
	//Start and End bound StartedAt: [Start, End)
	Start time.Time
	End   time.Time
	Limit int
}

//Match returns true if execution satisfies all filter conditions
func (ef *ExecutionFilter) Match(execution *entities.Execution) bool {
	if ef.Kind != "" && execution.Kind != ef.Kind {
		return false
	}
	if ef.SourceID != "" && execution.SourceID != ef.SourceID {
		return false
	}
	if ef.PipelineID != "" && execution.PipelineID != ef.PipelineID {
		return false
	}
	if ef.Status != "" && execution.Status != ef.Status {
		return false
	}
	return inRange(execution.StartedAt, ef.Start, ef.End)
}

//MetricFilter is a quality metrics query. Zero values mean "any"
type MetricFilter struct {
	SourceID string
	CheckID  string
	Start    time.Time
	End      time.Time
	Limit    int
}

func (mf *MetricFilter) Match(metric *entities.QualityMetric) bool {
	if mf.SourceID != "" && metric.SourceID != mf.SourceID {
		return false
	}
	if mf.CheckID != "" && metric.CheckID != mf.CheckID {
		return false
	}
	return inRange(metric.CreatedAt, mf.Start, mf.End)
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

//NewStorage returns configured Storage. Type is taken from meta.storage.type, inmemory by default
func NewStorage(ctx context.Context, metaStorage *viper.Viper) (Storage, error) {
	if metaStorage == nil {
		logging.Info("Meta storage isn't configured. In-memory storage will be used")
		return NewInMemory(), nil
	}

	storageType := strings.ToLower(metaStorage.GetString("type"))
	switch storageType {
	case "", InMemoryType:
		return NewInMemory(), nil
	case RedisType:
		factory := NewRedisPoolFactory(metaStorage.GetString("redis.host"), metaStorage.GetInt("redis.port"), metaStorage.GetString("redis.password"))
		if defaultPort, ok := factory.CheckAndSetDefaultPort(); ok {
			logging.Infof("meta.storage.redis.port isn't configured. Will be used default: %d", defaultPort)
		}
		pool, err := factory.Create()
		if err != nil {
			return nil, err
		}
		return NewRedis(pool), nil
	case PostgresType:
		return NewPostgres(ctx, metaStorage.GetString("postgres.dsn"))
	default:
		return nil, fmt.Errorf("unknown meta.storage.type: [%s]. Supported: [%s, %s, %s]", storageType, InMemoryType, RedisType, PostgresType)
	}
}

func applyLimit(total, limit int) int {
	if limit > 0 && limit < total {
		return limit
	}
	return total
}

//Classify converts storage errors into typed errors: not found, conflict or storage
func Classify(err error, entityType, id string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return errorj.NotFoundError.New("%s not found: [%s]", entityType, id).WithProperty(errorj.EntityID, id)
	case errors.Is(err, ErrAlreadyRunning):
		return errorj.ConflictError.New("%s [%s] is already in progress", entityType, id).WithProperty(errorj.EntityID, id)
	case errors.Is(err, ErrAlreadyExists):
		return errorj.ConflictError.New("%s [%s] already exists", entityType, id).WithProperty(errorj.EntityID, id)
	default:
		return errorj.StorageError.Wrap(err, "%s [%s] storage error", entityType, id)
	}
}
