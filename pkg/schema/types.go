package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type validates one parameter value.
type Type interface {
	// Name is the type as written in templates, e.g. "string" or "[int]".
	Name() string
	Validate(value any) error
}

type scalar struct {
	name  string
	check func(any) bool
}

func (t scalar) Name() string { return t.name }

func (t scalar) Validate(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// isInt accepts whole floats, which is how JSON and YAML numbers often decode.
func isInt(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isInt(v)
}

func isObject(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Map
}

// String accepts strings.
func String() Type { return scalar{"string", isString} }

// Int accepts integers and whole floats.
func Int() Type { return scalar{"int", isInt} }

// Float accepts any number.
func Float() Type { return scalar{"float", isFloat} }

// Bool accepts booleans.
func Bool() Type { return scalar{"bool", isBool} }

// Object accepts maps.
func Object() Type { return scalar{"object", isObject} }

// Any accepts every non-nil value.
func Any() Type { return scalar{"any", func(v any) bool { return v != nil }} }

type sliceType struct {
	elem Type
}

// Slice accepts slices whose elements all match elem.
func Slice(elem Type) Type { return sliceType{elem: elem} }

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected %s, got %T", t.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type optionalType struct {
	Type
}

// Optional lets the parameter be absent. Present values must still match t.
func Optional(t Type) Type { return optionalType{t} }

func (t optionalType) Name() string { return t.Type.Name() + "?" }

// IsOptional reports whether t may be absent.
func IsOptional(t Type) bool {
	_, ok := t.(optionalType)
	return ok
}

type customType struct {
	name     string
	validate func(any) error
}

// Custom wraps a validation function under a name.
func Custom(name string, validate func(any) error) Type {
	return customType{name: name, validate: validate}
}

func (t customType) Name() string { return t.name }

func (t customType) Validate(value any) error { return t.validate(value) }

// ParseType reads a type string: a scalar name, "[elem]", or either with a trailing "?".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if base, ok := strings.CutSuffix(s, "?"); ok {
		t, err := ParseType(base)
		if err != nil {
			return nil, err
		}
		return Optional(t), nil
	}
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	switch s {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "object":
		return Object(), nil
	case "any":
		return Any(), nil
	}
	return nil, fmt.Errorf("unsupported type %q", s)
}
