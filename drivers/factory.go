package drivers

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
)

//Factory resolves connectors by connector type and transformers by step kind
type Factory struct {
	mutex        sync.RWMutex
	connectors   map[entities.ConnectorType]Connector
	transformers map[entities.StepKind]Transformer
}

//NewFactory returns Factory with Dummy connector bound to every connector type
//and built-in transformers for every step kind
func NewFactory() *Factory {
	f := &Factory{
		connectors:   map[entities.ConnectorType]Connector{},
		transformers: map[entities.StepKind]Transformer{},
	}

	dummy := NewDummy()
	for _, connectorType := range entities.ConnectorTypes {
		f.connectors[connectorType] = dummy
	}

	for _, transformer := range []Transformer{FilterTransformer{}, MapTransformer{}, AggregateTransformer{}, JoinTransformer{}, CustomTransformer{}} {
		f.transformers[transformer.Kind()] = transformer
	}

	return f
}

func (f *Factory) RegisterConnector(connectorType entities.ConnectorType, connector Connector) {
	f.mutex.Lock()
	f.connectors[connectorType] = connector
	f.mutex.Unlock()
}

func (f *Factory) RegisterTransformer(transformer Transformer) {
	f.mutex.Lock()
	f.transformers[transformer.Kind()] = transformer
	f.mutex.Unlock()
}

//Connector returns validation error if connector type isn't supported
func (f *Factory) Connector(connectorType entities.ConnectorType) (Connector, error) {
	f.mutex.RLock()
	connector, ok := f.connectors[connectorType]
	f.mutex.RUnlock()
	if !ok {
		return nil, errorj.ValidationError.New("unknown connector type: [%s]", connectorType)
	}

	return connector, nil
}

//Transformer returns validation error if step kind isn't supported
func (f *Factory) Transformer(kind entities.StepKind) (Transformer, error) {
	f.mutex.RLock()
	transformer, ok := f.transformers[kind]
	f.mutex.RUnlock()
	if !ok {
		return nil, errorj.ValidationError.New("unknown step kind: [%s]", kind)
	}

	return transformer, nil
}

//ValidateSteps validates all steps and returns all found problems at once
func (f *Factory) ValidateSteps(steps []entities.Step) error {
	var multiErr error
	for i := range steps {
		step := &steps[i]
		transformer, err := f.Transformer(step.Kind)
		if err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}

		if err := transformer.Validate(step); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}

	if multiErr != nil {
		return errorj.ValidationError.Wrap(multiErr, "invalid pipeline steps")
	}

	return nil
}
