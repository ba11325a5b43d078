package quality

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ledgerops/warehouse/audit"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
	"github.com/spf13/cast"
)

const (
	checkEntity  = "quality check"
	sourceEntity = "source"

	MinScore = 0.0
	MaxScore = 100.0

	defaultMetricsLimit = 100
)

//Scheduler registers cron triggers of enabled quality checks
type Scheduler interface {
	ValidateSchedule(schedule string) error
	ScheduleCheck(check *entities.QualityCheck) error
	UnscheduleCheck(check *entities.QualityCheck)
}

//CheckRequest is a body of quality check creation request
type CheckRequest struct {
	SourceID string        `json:"source_id"`
	Name     string        `json:"name,omitempty"`
	Type     string        `json:"type"`
	Rules    []RuleRequest `json:"rules"`
	Schedule string        `json:"schedule,omitempty"`
	Enabled  *bool         `json:"enabled,omitempty"`
}

//RuleRequest threshold may be a number or a numeric string
type RuleRequest struct {
	Field     string                 `json:"field"`
	Condition string                 `json:"condition"`
	Threshold interface{}            `json:"threshold"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

//RuleResult is a part of QualityMetric details
type RuleResult struct {
	Field     string                 `json:"field"`
	Condition entities.RuleCondition `json:"condition"`
	Threshold float64                `json:"threshold"`
	Observed  float64                `json:"observed"`
	Passed    bool                   `json:"passed"`
	Error     string                 `json:"error,omitempty"`
}

//Engine owns quality checks and produces quality metrics synchronously
type Engine struct {
	storage    meta.Storage
	factory    *drivers.Factory
	auditSink  audit.Sink
	scheduler  Scheduler
	runTimeout time.Duration
}

func NewEngine(storage meta.Storage, factory *drivers.Factory, auditSink audit.Sink, runTimeout time.Duration) *Engine {
	return &Engine{storage: storage, factory: factory, auditSink: auditSink, runTimeout: runTimeout}
}

//AttachScheduler enables cron triggers. Must be called before serving requests
func (e *Engine) AttachScheduler(scheduler Scheduler) {
	e.scheduler = scheduler
}

func (e *Engine) Create(ctx context.Context, tenantID string, req *CheckRequest) (*entities.QualityCheck, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if req.SourceID == "" {
		return nil, errorj.ValidationError.New("'source_id' is required")
	}

	checkType, err := entities.CheckTypeFromString(req.Type)
	if err != nil {
		return nil, err
	}

	rules, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}

	schedule := strings.TrimSpace(req.Schedule)
	if schedule != "" && e.scheduler != nil {
		if err := e.scheduler.ValidateSchedule(schedule); err != nil {
			return nil, errorj.ValidationError.New("invalid schedule [%s]: %v", schedule, err)
		}
	}

	if _, err := e.storage.GetSource(ctx, tenantID, req.SourceID); err != nil {
		return nil, meta.Classify(err, sourceEntity, req.SourceID)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := timestamp.Now().UTC()
	check := &entities.QualityCheck{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SourceID:  req.SourceID,
		Name:      strings.TrimSpace(req.Name),
		Type:      checkType,
		Rules:     rules,
		Schedule:  schedule,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.storage.CreateCheck(ctx, check); err != nil {
		return nil, meta.Classify(err, checkEntity, check.ID)
	}

	e.audit(tenantID, entities.QualityCheckCreated, check.ID, map[string]interface{}{"source_id": check.SourceID, "type": check.Type, "rules": len(check.Rules)})
	if e.scheduler != nil && check.Enabled && check.Schedule != "" {
		if err := e.scheduler.ScheduleCheck(check); err != nil {
			logging.Errorf("[%s] error scheduling quality check [%s]: %v", tenantID, check.ID, err)
		}
	}

	return check, nil
}

func (e *Engine) Get(ctx context.Context, tenantID, id string) (*entities.QualityCheck, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	check, err := e.storage.GetCheck(ctx, tenantID, id)
	if err != nil {
		return nil, meta.Classify(err, checkEntity, id)
	}
	return check, nil
}

//List returns tenant checks. If sourceID isn't empty only checks of the source are returned
func (e *Engine) List(ctx context.Context, tenantID, sourceID string) ([]*entities.QualityCheck, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	checks, err := e.storage.ListChecks(ctx, tenantID, sourceID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing quality checks")
	}
	return checks, nil
}

func (e *Engine) Delete(ctx context.Context, tenantID, id string) error {
	check, err := e.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if err := e.storage.DeleteCheck(ctx, tenantID, id); err != nil {
		return meta.Classify(err, checkEntity, id)
	}

	if e.scheduler != nil {
		e.scheduler.UnscheduleCheck(check)
	}

	e.audit(tenantID, entities.QualityCheckDeleted, id, map[string]interface{}{"source_id": check.SourceID})
	return nil
}

//Run evaluates all rules of the check and appends exactly one QualityMetric.
//Profiling errors don't fail the run: they are reported in the metric details with observed rate 0
func (e *Engine) Run(ctx context.Context, tenantID, checkID string) (*entities.QualityMetric, error) {
	check, err := e.Get(ctx, tenantID, checkID)
	if err != nil {
		return nil, err
	}

	source, err := e.storage.GetSource(ctx, tenantID, check.SourceID)
	if err != nil {
		return nil, meta.Classify(err, sourceEntity, check.SourceID)
	}

	connector, err := e.factory.Connector(source.Type)
	if err != nil {
		return nil, err
	}

	profileCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		profileCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	profiler, _ := connector.(drivers.Profiler)
	results := make([]RuleResult, 0, len(check.Rules))
	for _, rule := range check.Rules {
		results = append(results, profile(profileCtx, profiler, source, rule))
	}

	score, passed, errs := summarize(results)
	details := map[string]interface{}{
		"rules":  results,
		"passed": passed,
		"failed": len(results) - passed,
	}
	if len(errs) > 0 {
		details["errors"] = errs
	}

	metric := &entities.QualityMetric{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SourceID:   check.SourceID,
		CheckID:    check.ID,
		MetricType: check.Type,
		Score:      score,
		Details:    details,
		CreatedAt:  timestamp.Now().UTC(),
	}

	if err := e.storage.SaveMetric(ctx, metric); err != nil {
		return nil, errorj.StorageError.Wrap(err, "error saving quality metric of check [%s]", check.ID)
	}

	metrics.QualityCheckRun(string(check.Type), score)
	logging.Infof("[%s] quality check [%s] (%s) score: %.2f, passed rules: %d/%d", tenantID, check.ID, check.Type, score, passed, len(results))
	return metric, nil
}

//Metrics returns newest first quality samples of the source (or of all tenant sources if sourceID is empty)
func (e *Engine) Metrics(ctx context.Context, tenantID, sourceID string, limit int) ([]*entities.QualityMetric, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMetricsLimit
	}

	result, err := e.storage.ListMetrics(ctx, tenantID, meta.MetricFilter{SourceID: sourceID, Limit: limit})
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing quality metrics")
	}
	return result, nil
}

//ScheduleAll registers cron triggers of all stored enabled checks. It is called once on startup
func (e *Engine) ScheduleAll(ctx context.Context) error {
	if e.scheduler == nil {
		return nil
	}

	checks, err := e.storage.ListAllChecks(ctx)
	if err != nil {
		return err
	}

	for _, check := range checks {
		if !check.Enabled || check.Schedule == "" {
			continue
		}
		if err := e.scheduler.ScheduleCheck(check); err != nil {
			logging.Errorf("[%s] error scheduling quality check [%s]: %v", check.TenantID, check.ID, err)
		}
	}
	return nil
}

func profile(ctx context.Context, profiler drivers.Profiler, source *entities.Source, rule entities.QualityRule) RuleResult {
	result := RuleResult{Field: rule.Field, Condition: rule.Condition, Threshold: rule.Threshold}
	if profiler == nil {
		result.Error = "connector doesn't support profiling"
		return result
	}

	observed, err := profiler.Profile(ctx, source, rule)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Observed = Clamp(observed)
	result.Passed = result.Observed >= rule.Threshold
	return result
}

//summarize returns mean observed rate, number of passed rules and profiling errors
func summarize(results []RuleResult) (float64, int, []string) {
	if len(results) == 0 {
		return MinScore, 0, nil
	}

	var sum float64
	passed := 0
	var errs []string
	for _, result := range results {
		sum += result.Observed
		if result.Passed {
			passed++
		}
		if result.Error != "" {
			errs = append(errs, result.Field+": "+result.Error)
		}
	}

	return Clamp(sum / float64(len(results))), passed, errs
}

//Clamp bounds score to [0, 100]. NaN is treated as 0
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func parseRules(requests []RuleRequest) ([]entities.QualityRule, error) {
	if len(requests) == 0 {
		return nil, errorj.ValidationError.New("at least one rule is required")
	}

	rules := make([]entities.QualityRule, 0, len(requests))
	for i, req := range requests {
		field := strings.TrimSpace(req.Field)
		if field == "" {
			return nil, errorj.ValidationError.New("rule #%d: 'field' is required", i)
		}

		condition, err := entities.RuleConditionFromString(req.Condition)
		if err != nil {
			return nil, errorj.Decorate(err, "rule #%d", i)
		}

		threshold, err := cast.ToFloat64E(req.Threshold)
		if err != nil || req.Threshold == nil {
			return nil, errorj.ValidationError.New("rule #%d: 'threshold' must be a number", i)
		}
		if threshold < MinScore || threshold > MaxScore {
			return nil, errorj.ValidationError.New("rule #%d: 'threshold' must be in [0, 100], got %v", i, threshold)
		}

		if err := validateParams(condition, req.Params); err != nil {
			return nil, errorj.ValidationError.New("rule #%d: %v", i, err)
		}

		rules = append(rules, entities.QualityRule{Field: field, Condition: condition, Threshold: threshold, Params: req.Params})
	}

	return rules, nil
}

func validateParams(condition entities.RuleCondition, params map[string]interface{}) error {
	switch condition {
	case entities.RangeCondition:
		minParam, hasMin := params["min"]
		maxParam, hasMax := params["max"]
		if !hasMin && !hasMax {
			return errorj.ValidationError.New("'min' or 'max' param is required for range condition")
		}
		var minValue, maxValue float64
		var err error
		if hasMin {
			if minValue, err = cast.ToFloat64E(minParam); err != nil {
				return errorj.ValidationError.New("'min' must be a number")
			}
		}
		if hasMax {
			if maxValue, err = cast.ToFloat64E(maxParam); err != nil {
				return errorj.ValidationError.New("'max' must be a number")
			}
		}
		if hasMin && hasMax && minValue > maxValue {
			return errorj.ValidationError.New("'min' is greater than 'max'")
		}
	case entities.RegexCondition:
		pattern := cast.ToString(params["pattern"])
		if pattern == "" {
			return errorj.ValidationError.New("'pattern' param is required for regex condition")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return errorj.ValidationError.New("invalid 'pattern': %v", err)
		}
	case entities.FreshWithinCondition:
		duration, err := cast.ToDurationE(params["duration"])
		if err != nil || duration <= 0 {
			return errorj.ValidationError.New("'duration' param must be a positive duration (e.g. 24h)")
		}
	}
	return nil
}

func (e *Engine) audit(tenantID, action, id string, details map[string]interface{}) {
	if err := e.auditSink.Append(audit.NewEvent(tenantID, action, entities.QualityCheckEntity, id, details)); err != nil {
		logging.SystemErrorf("[%s] error writing audit event %s [%s]: %v", tenantID, action, id, err)
	}
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errorj.ValidationError.New("tenant id is required")
	}
	return nil
}
