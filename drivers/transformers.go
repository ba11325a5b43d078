package drivers

import (
	"context"
	"math"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
)

//FilterConfig keeps records matching Expression. DropRate is an expected share of dropped records [0, 1)
type FilterConfig struct {
	Expression string  `mapstructure:"expression" json:"expression,omitempty"`
	DropRate   float64 `mapstructure:"drop_rate" json:"drop_rate,omitempty"`
}

//MapConfig renames or computes fields: target field -> source expression
type MapConfig struct {
	Mappings map[string]string `mapstructure:"mappings" json:"mappings,omitempty"`
}

type AggregateConfig struct {
	GroupBy      []string          `mapstructure:"group_by" json:"group_by,omitempty"`
	Aggregations map[string]string `mapstructure:"aggregations" json:"aggregations,omitempty"`
}

//JoinConfig joins records with another source by the key fields
type JoinConfig struct {
	With string   `mapstructure:"with" json:"with,omitempty"`
	On   []string `mapstructure:"on" json:"on,omitempty"`
	Type string   `mapstructure:"type" json:"type,omitempty"`
}

type CustomConfig struct {
	Name string `mapstructure:"name" json:"name,omitempty"`
	//FailedRecords is a number of records which custom step rejects
	FailedRecords int64                  `mapstructure:"failed_records" json:"failed_records,omitempty"`
	Params        map[string]interface{} `mapstructure:"params" json:"params,omitempty"`
}

var joinTypes = map[string]bool{"": true, "inner": true, "left": true, "right": true, "full": true}

//FilterTransformer drops the configured share of records
type FilterTransformer struct{}

func (FilterTransformer) Kind() entities.StepKind { return entities.FilterStep }

func (ft FilterTransformer) Validate(step *entities.Step) error {
	_, err := ft.config(step)
	return err
}

func (ft FilterTransformer) config(step *entities.Step) (*FilterConfig, error) {
	config := &FilterConfig{}
	if err := decodeStep(step, config); err != nil {
		return nil, err
	}
	if config.Expression == "" {
		return nil, stepError(step, "'expression' is required")
	}
	if config.DropRate < 0 || config.DropRate >= 1 {
		return nil, stepError(step, "'drop_rate' must be in [0, 1)")
	}
	return config, nil
}

func (ft FilterTransformer) Transform(ctx context.Context, step *entities.Step, input Result) (Result, error) {
	config, err := ft.config(step)
	if err != nil {
		return input, err
	}

	kept := int64(math.Round(float64(input.Processed) * (1 - config.DropRate)))
	return Result{Processed: kept, Failed: input.Failed}, nil
}

//MapTransformer keeps records count as is
type MapTransformer struct{}

func (MapTransformer) Kind() entities.StepKind { return entities.MapStep }

func (MapTransformer) Validate(step *entities.Step) error {
	config := &MapConfig{}
	if err := decodeStep(step, config); err != nil {
		return err
	}
	if len(config.Mappings) == 0 {
		return stepError(step, "'mappings' must contain at least one field")
	}
	for target := range config.Mappings {
		if target == "" {
			return stepError(step, "mapping target field can't be empty")
		}
	}
	return nil
}

func (mt MapTransformer) Transform(ctx context.Context, step *entities.Step, input Result) (Result, error) {
	return input, mt.Validate(step)
}

//AggregateTransformer collapses records into groups. Without data access the output is bounded by the input
type AggregateTransformer struct{}

func (AggregateTransformer) Kind() entities.StepKind { return entities.AggregateStep }

func (AggregateTransformer) Validate(step *entities.Step) error {
	config := &AggregateConfig{}
	if err := decodeStep(step, config); err != nil {
		return err
	}
	if len(config.GroupBy) == 0 && len(config.Aggregations) == 0 {
		return stepError(step, "'group_by' or 'aggregations' is required")
	}
	return nil
}

func (at AggregateTransformer) Transform(ctx context.Context, step *entities.Step, input Result) (Result, error) {
	return input, at.Validate(step)
}

type JoinTransformer struct{}

func (JoinTransformer) Kind() entities.StepKind { return entities.JoinStep }

func (JoinTransformer) Validate(step *entities.Step) error {
	config := &JoinConfig{}
	if err := decodeStep(step, config); err != nil {
		return err
	}
	if config.With == "" {
		return stepError(step, "'with' is required")
	}
	if len(config.On) == 0 {
		return stepError(step, "'on' must contain at least one key field")
	}
	if !joinTypes[config.Type] {
		return stepError(step, "unknown join type [%s]", config.Type)
	}
	return nil
}

func (jt JoinTransformer) Transform(ctx context.Context, step *entities.Step, input Result) (Result, error) {
	return input, jt.Validate(step)
}

//CustomTransformer is a user defined step. It may reject records with failed_records param
type CustomTransformer struct{}

func (CustomTransformer) Kind() entities.StepKind { return entities.CustomStep }

func (ct CustomTransformer) Validate(step *entities.Step) error {
	_, err := ct.config(step)
	return err
}

func (CustomTransformer) config(step *entities.Step) (*CustomConfig, error) {
	config := &CustomConfig{}
	if err := decodeStep(step, config); err != nil {
		return nil, err
	}
	if config.Name == "" {
		return nil, stepError(step, "'name' is required")
	}
	if config.FailedRecords < 0 {
		return nil, stepError(step, "'failed_records' can't be negative")
	}
	return config, nil
}

func (ct CustomTransformer) Transform(ctx context.Context, step *entities.Step, input Result) (Result, error) {
	config, err := ct.config(step)
	if err != nil {
		return input, err
	}

	rejected := config.FailedRecords
	if rejected > input.Processed {
		rejected = input.Processed
	}
	return Result{Processed: input.Processed - rejected, Failed: input.Failed + rejected}, nil
}

func decodeStep(step *entities.Step, object interface{}) error {
	if err := decodeConfig(step.Config, object); err != nil {
		return stepError(step, "malformed config: %v", err)
	}
	return nil
}

func stepError(step *entities.Step, format string, args ...interface{}) error {
	name := step.Name
	if name == "" {
		name = string(step.Kind)
	}
	return errorj.ValidationError.New("step [%s]: "+format, append([]interface{}{name}, args...)...)
}
