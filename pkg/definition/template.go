package definition

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const defaultTimeoutMs = 30000

// EventRule maps a domain event type onto a saga input.
type EventRule struct {
	Event      string           `yaml:"event" mapstructure:"event"`
	Domain     string           `yaml:"domain,omitempty" mapstructure:"domain"`
	Input      domain.InputKind `yaml:"input" mapstructure:"input"`
	Step       string           `yaml:"step" mapstructure:"step"`
	ErrorField string           `yaml:"error_field,omitempty" mapstructure:"error_field"`
}

// StartRule starts a saga when a matching event arrives.
type StartRule struct {
	Event  string   `yaml:"event" mapstructure:"event"`
	Domain string   `yaml:"domain,omitempty" mapstructure:"domain"`
	Params []string `yaml:"params,omitempty" mapstructure:"params"`
}

// Template is a declarative saga type.
type Template struct {
	Name           string
	Description    string
	CorrelationKey string
	Defaults       map[string]any
	Parameters     schema.Schema
	Steps          []domain.Step
	Compensations  map[string]domain.CompensationAction
	Events         []EventRule
	StartOn        []StartRule

	callbacks Callbacks
}

// rawTemplate mirrors the file layout; steps and compensations stay untyped so each
// entry can be a shorthand string or an inline map.
type rawTemplate struct {
	Name           string            `mapstructure:"name"`
	Description    string            `mapstructure:"description"`
	CorrelationKey string            `mapstructure:"correlation_key"`
	Defaults       map[string]any    `mapstructure:"defaults"`
	Parameters     map[string]string `mapstructure:"parameters"`
	Steps          []any             `mapstructure:"steps"`
	Compensations  map[string]any    `mapstructure:"compensations"`
	Events         []EventRule       `mapstructure:"events"`
	StartOn        []StartRule       `mapstructure:"start_on"`
}

// Parse decodes and validates a template. JSON input is accepted as YAML.
func Parse(data []byte) (*Template, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return FromMap(doc)
}

// FromMap decodes and validates a template already unmarshalled into a generic map,
// as produced by front matter or any other document store.
func FromMap(doc map[string]any) (*Template, error) {
	var raw rawTemplate
	if err := decode(doc, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}

	t := &Template{
		Name:           raw.Name,
		Description:    raw.Description,
		CorrelationKey: raw.CorrelationKey,
		Defaults:       raw.Defaults,
		Events:         raw.Events,
		StartOn:        raw.StartOn,
		Compensations:  make(map[string]domain.CompensationAction, len(raw.Compensations)),
	}

	if len(raw.Parameters) > 0 {
		params, err := schema.Parse(raw.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSaga, err)
		}
		t.Parameters = params
	}

	for i, item := range raw.Steps {
		step, err := decodeStep(item)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		t.Steps = append(t.Steps, step)
	}

	for stepID, item := range raw.Compensations {
		action, err := decodeCompensation(item)
		if err != nil {
			return nil, fmt.Errorf("compensation %q: %w", stepID, err)
		}
		t.Compensations[stepID] = action
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeStep(item any) (domain.Step, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return domain.Step{}, fmt.Errorf("invalid step definition type: %T", item)
	}

	policy, err := decodeRetryPolicy(m["retry_policy"])
	if err != nil {
		return domain.Step{}, err
	}
	rest := make(map[string]any, len(m))
	for k, v := range m {
		if k != "retry_policy" {
			rest[k] = v
		}
	}

	step := domain.Step{TimeoutMs: defaultTimeoutMs}
	if err := decode(rest, &step); err != nil {
		return domain.Step{}, err
	}
	step.RetryPolicy = policy
	return step, nil
}

// decodeRetryPolicy accepts "default", "none" or an inline policy.
// Fields missing from an inline policy keep their defaults.
func decodeRetryPolicy(v any) (domain.RetryPolicy, error) {
	switch p := v.(type) {
	case nil:
		return domain.DefaultRetryPolicy(), nil
	case string:
		switch p {
		case "default":
			return domain.DefaultRetryPolicy(), nil
		case "none":
			return domain.NoRetry(), nil
		}
		return domain.RetryPolicy{}, fmt.Errorf("unknown retry policy %q", p)
	case map[string]any:
		policy := domain.DefaultRetryPolicy()
		if err := decode(p, &policy); err != nil {
			return domain.RetryPolicy{}, fmt.Errorf("failed to decode retry policy: %w", err)
		}
		return policy, nil
	}
	return domain.RetryPolicy{}, fmt.Errorf("invalid retry policy type: %T", v)
}

// decodeCompensation accepts "domain/CommandType" or an inline action.
func decodeCompensation(item any) (domain.CompensationAction, error) {
	switch v := item.(type) {
	case string:
		domainName, command, ok := strings.Cut(v, "/")
		if !ok || domainName == "" || command == "" {
			return domain.CompensationAction{}, fmt.Errorf("shorthand must be domain/CommandType, got %q", v)
		}
		return domain.CompensationAction{Domain: domainName, CommandType: command}, nil
	case map[string]any:
		var action domain.CompensationAction
		if err := decode(v, &action); err != nil {
			return domain.CompensationAction{}, err
		}
		return action, nil
	}
	return domain.CompensationAction{}, fmt.Errorf("invalid compensation definition type: %T", item)
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Validate checks the saga shape and that every rule refers to something declared.
func (t *Template) Validate() error {
	sample := t.newSaga()
	if err := domain.Validate(sample); err != nil {
		return err
	}

	var problems []string
	for i, rule := range t.Events {
		if rule.Event == "" {
			problems = append(problems, fmt.Sprintf("event rule %d has no event", i))
		}
		in := domain.Input{Kind: rule.Input, StepID: rule.Step}
		if err := in.Validate(); err != nil || rule.Input == domain.InputStart {
			problems = append(problems, fmt.Sprintf("event rule %q: invalid input %q", rule.Event, rule.Input))
			continue
		}
		switch rule.Input {
		case domain.InputStepCompleted, domain.InputStepFailed:
			if _, ok := sample.Step(rule.Step); !ok {
				problems = append(problems, fmt.Sprintf("event rule %q: unknown step %q", rule.Event, rule.Step))
			}
		case domain.InputCompensationCompleted, domain.InputCompensationFailed:
			if _, ok := t.Compensations[rule.Step]; !ok {
				problems = append(problems, fmt.Sprintf("event rule %q: no compensation for %q", rule.Event, rule.Step))
			}
		}
	}
	for i, rule := range t.StartOn {
		if rule.Event == "" {
			problems = append(problems, fmt.Sprintf("start rule %d has no event", i))
		}
	}
	if t.CorrelationKey != "" && t.Parameters != nil {
		if typ, ok := t.Parameters[t.CorrelationKey]; ok && schema.IsOptional(typ) {
			problems = append(problems, fmt.Sprintf("correlation parameter %q cannot be optional", t.CorrelationKey))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSaga, strings.Join(problems, "; "))
	}
	return nil
}

// newSaga builds a fresh saga from the template without identity or parameters.
func (t *Template) newSaga() *domain.Saga {
	saga := &domain.Saga{
		Name:          t.Name,
		State:         domain.Pending(),
		Compensations: maps.Clone(t.Compensations),
		Context:       maps.Clone(t.Defaults),
		Metadata:      map[string]string{"template": t.Name},
	}
	for _, step := range t.Steps {
		step.DependsOn = slices.Clone(step.DependsOn)
		saga.Steps = append(saga.Steps, step)
	}
	if saga.Compensations == nil {
		saga.Compensations = make(map[string]domain.CompensationAction)
	}
	if saga.Context == nil {
		saga.Context = make(map[string]any)
	}
	return saga
}
