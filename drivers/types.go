package drivers

import (
	"context"

	"github.com/ledgerops/warehouse/entities"
	"github.com/mitchellh/mapstructure"
)

//Result is an outcome of an extraction or a transformation step
//Failed records don't fail the run (partial success)
type Result struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

//Connector interface must be implemented by every connector type
type Connector interface {
	//Validate checks connection settings of the source without any data loading
	Validate(ctx context.Context, source *entities.Source) error
	//Extract loads data from the source and returns records counters
	Extract(ctx context.Context, source *entities.Source, jobType entities.JobType) (Result, error)
}

//Profiler is an optional Connector capability which evaluates quality rules
type Profiler interface {
	//Profile returns observed pass-rate of the rule in percents [0, 100]
	Profile(ctx context.Context, source *entities.Source, rule entities.QualityRule) (float64, error)
}

//Transformer applies one kind of pipeline steps
type Transformer interface {
	Kind() entities.StepKind
	Validate(step *entities.Step) error
	Transform(ctx context.Context, step *entities.Step, input Result) (Result, error)
}

//decodeConfig decodes step or source config into typed struct
//numbers and strings are weakly typed because configs come from JSON bodies
func decodeConfig(input map[string]interface{}, object interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      false,
		Result:           object,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
