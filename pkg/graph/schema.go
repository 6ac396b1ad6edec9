package graph

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Schema is the opaque validation object bound to a graph's context and
// optionally to a node's param bag. The Engine never interprets a schema
// beyond calling Parse against it.
type Schema interface {
	// Parse validates value and returns the canonical (possibly
	// normalized) shape, or the first path-tagged error.
	Parse(value map[string]any) (map[string]any, error)

	// Describe returns the set of field names the schema requires, for
	// diagnostics only.
	Describe() []string
}

// StructSchema is the default Schema implementation: a context or param
// bag is round-tripped through JSON into a caller-supplied struct type and
// validated with go-playground/validator struct tags.
type StructSchema struct {
	// New must return a fresh pointer to the struct type to decode into,
	// e.g. func() any { return &MyContext{} }.
	New func() any

	validate *validator.Validate
}

// NewStructSchema builds a StructSchema around a struct prototype factory.
func NewStructSchema(newFn func() any) *StructSchema {
	return &StructSchema{New: newFn, validate: validator.New()}
}

// Parse decodes value into the struct type, validates it with struct tags,
// and returns the canonical map form on success.
func (s *StructSchema) Parse(value map[string]any) (map[string]any, error) {
	if s.validate == nil {
		s.validate = validator.New()
	}

	target := s.New()

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode context for validation: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode context for validation: %w", err)
	}

	if err := s.validate.Struct(target); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return nil, fmt.Errorf("%s: failed %q validation", first.Namespace(), first.Tag())
		}
		return nil, err
	}

	normalized, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode validated context: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, fmt.Errorf("decode validated context: %w", err)
	}
	return out, nil
}

// Describe walks the struct's fields and reports those tagged `validate:"required"`.
func (s *StructSchema) Describe() []string {
	target := s.New()
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}
		for _, rule := range splitComma(tag) {
			if rule == "required" {
				name := field.Tag.Get("json")
				if name == "" {
					name = field.Name
				}
				required = append(required, name)
				break
			}
		}
	}
	return required
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// NoopSchema accepts any context unchanged. Useful for graphs that want
// the write-interception and event machinery without a typed contract.
type NoopSchema struct{}

func (NoopSchema) Parse(value map[string]any) (map[string]any, error) { return value, nil }
func (NoopSchema) Describe() []string                                 { return nil }
