package domain

import (
	"maps"

	"github.com/google/uuid"
)

// Builder assembles a Saga step by step.
//
//	saga, err := domain.NewBuilder("order-fulfillment").
//		Step("validate", "orders", "ValidateOrder").
//		Step("charge", "payments", "ChargeCard", "validate").
//		Compensation("charge", "payments", "RefundCard", nil).
//		Build()
type Builder struct {
	saga *Saga
}

// NewBuilder starts a saga with a fresh id and the given name.
func NewBuilder(name string) *Builder {
	return &Builder{saga: &Saga{
		ID:            uuid.NewString(),
		Name:          name,
		State:         Pending(),
		Compensations: make(map[string]CompensationAction),
		Context:       make(map[string]any),
		Metadata:      make(map[string]string),
	}}
}

// WithID overrides the generated saga id.
func (b *Builder) WithID(id string) *Builder {
	b.saga.ID = id
	return b
}

// WithCorrelation sets the correlation id.
func (b *Builder) WithCorrelation(id string) *Builder {
	b.saga.CorrelationID = id
	return b
}

// Step appends a step with the default retry policy and a 30s timeout.
func (b *Builder) Step(id, domain, commandType string, dependsOn ...string) *Builder {
	return b.AddStep(Step{
		ID:          id,
		Domain:      domain,
		CommandType: commandType,
		DependsOn:   dependsOn,
		RetryPolicy: DefaultRetryPolicy(),
		TimeoutMs:   30000,
	})
}

// AddStep appends a fully specified step.
func (b *Builder) AddStep(step Step) *Builder {
	b.saga.Steps = append(b.saga.Steps, step)
	return b
}

// Compensation registers the action that undoes stepID.
func (b *Builder) Compensation(stepID, domain, commandType string, params map[string]any) *Builder {
	b.saga.Compensations[stepID] = CompensationAction{
		Domain:      domain,
		CommandType: commandType,
		Parameters:  maps.Clone(params),
	}
	return b
}

// Context sets a value in the saga context.
func (b *Builder) Context(key string, value any) *Builder {
	b.saga.Context[key] = value
	return b
}

// Metadata sets a metadata label.
func (b *Builder) Metadata(key, value string) *Builder {
	b.saga.Metadata[key] = value
	return b
}

// Build validates and returns the saga.
func (b *Builder) Build() (*Saga, error) {
	if err := Validate(b.saga); err != nil {
		return nil, err
	}
	return b.saga.Clone(), nil
}
