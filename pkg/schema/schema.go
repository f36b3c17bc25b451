package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Schema maps parameter names to their types.
type Schema map[string]Type

// Parse builds a Schema from type strings, e.g. {"order_id": "string"}.
func Parse(types map[string]string) (Schema, error) {
	s := make(Schema, len(types))
	for key, name := range types {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		s[key] = t
	}
	return s, nil
}

// Types returns the schema as type strings.
func (s Schema) Types() map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s))
	for key, t := range s {
		out[key] = t.Name()
	}
	return out
}

// Keys returns the parameter names in order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks data against every parameter of the schema. Keys not in the
// schema are allowed. An empty schema accepts anything.
func (s Schema) Validate(data map[string]any) error {
	var errs []error
	for _, key := range s.Keys() {
		t := s[key]
		value, ok := data[key]
		if !ok || value == nil {
			if !IsOptional(t) {
				errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Sample returns a placeholder value for every required parameter.
func (s Schema) Sample() map[string]any {
	out := make(map[string]any, len(s))
	for key, t := range s {
		if !IsOptional(t) {
			out[key] = sample(t)
		}
	}
	return out
}

func sample(t Type) any {
	switch t.Name() {
	case "int", "float":
		return 0
	case "bool":
		return false
	case "object":
		return map[string]any{}
	}
	if _, ok := t.(sliceType); ok {
		return []any{}
	}
	return "sample"
}

// MarshalJSON writes the schema as type strings.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.Types())
}

// UnmarshalJSON reads a schema written as type strings.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if raw == nil {
		*s = nil
		return nil
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ValidationError is one failing parameter.
type ValidationError struct {
	Key    string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Key, e.Reason)
}

// AggregateError collects every failing parameter.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
