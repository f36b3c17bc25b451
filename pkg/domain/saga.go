package domain

import (
	"maps"
	"slices"
	"time"
)

// RetryPolicy declares how a step invocation is retried.
type RetryPolicy struct {
	MaxRetries       uint32  `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs uint64  `json:"initial_backoff_ms" yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	Multiplier       float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
	MaxBackoffMs     uint64  `json:"max_backoff_ms" yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// DefaultRetryPolicy returns 3 retries starting at 100ms, doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		InitialBackoffMs: 100,
		Multiplier:       2.0,
		MaxBackoffMs:     10000,
	}
}

// NoRetry returns a policy that runs the action exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{Multiplier: 1}
}

// InitialBackoff returns InitialBackoffMs as a duration.
func (p RetryPolicy) InitialBackoff() time.Duration {
	return time.Duration(p.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns MaxBackoffMs as a duration.
func (p RetryPolicy) MaxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffMs) * time.Millisecond
}

// Step is one unit of work in a saga, executed in a target domain.
type Step struct {
	ID          string      `json:"id" yaml:"id" mapstructure:"id"`
	Domain      string      `json:"domain" yaml:"domain" mapstructure:"domain"`
	CommandType string      `json:"command_type" yaml:"command_type" mapstructure:"command_type"`
	DependsOn   []string    `json:"depends_on,omitempty" yaml:"depends_on,omitempty" mapstructure:"depends_on"`
	RetryPolicy RetryPolicy `json:"retry_policy" yaml:"retry_policy" mapstructure:"retry_policy"`
	TimeoutMs   uint64      `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// Timeout returns TimeoutMs as a duration. Zero means no deadline.
func (s Step) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// CompensationAction describes the command that undoes a step.
// It is only a description; execution goes through the command bus.
type CompensationAction struct {
	Domain      string         `json:"domain" yaml:"domain" mapstructure:"domain"`
	CommandType string         `json:"command_type" yaml:"command_type" mapstructure:"command_type"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// Saga is a long-running transaction spanning several domains.
type Saga struct {
	ID            string                        `json:"id"`
	Name          string                        `json:"name"`
	CorrelationID string                        `json:"correlation_id,omitempty"`
	Steps         []Step                        `json:"steps"`
	State         SagaState                     `json:"state"`
	Compensations map[string]CompensationAction `json:"compensations,omitempty"`
	Context       map[string]any                `json:"context,omitempty"`
	Metadata      map[string]string             `json:"metadata,omitempty"`
}

// Step looks up a step by id.
func (s *Saga) Step(id string) (Step, bool) {
	for _, step := range s.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// Correlation returns the correlation id, falling back to the saga id.
func (s *Saga) Correlation() string {
	if s.CorrelationID != "" {
		return s.CorrelationID
	}
	return s.ID
}

// Clone returns a copy that shares no slices or maps with s.
// Context values are copied shallowly.
func (s *Saga) Clone() *Saga {
	if s == nil {
		return nil
	}
	out := *s
	out.Steps = make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		step.DependsOn = slices.Clone(step.DependsOn)
		out.Steps[i] = step
	}
	out.State = s.State.Clone()
	if s.Compensations != nil {
		out.Compensations = make(map[string]CompensationAction, len(s.Compensations))
		for k, v := range s.Compensations {
			v.Parameters = maps.Clone(v.Parameters)
			out.Compensations[k] = v
		}
	}
	out.Context = maps.Clone(s.Context)
	out.Metadata = maps.Clone(s.Metadata)
	return &out
}
