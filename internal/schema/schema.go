// Package schema holds the JSON Schemas that model output is validated
// against. The same documents are sent to providers as response formats.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("schema validation failed")

// Schema is a compiled JSON Schema.
type Schema struct {
	// Name identifies the schema in provider requests.
	Name string
	// Strict marks schemas whose objects list every property as required,
	// which lets providers enforce them exactly.
	Strict bool

	raw      []byte
	compiled *jsonschema.Schema
}

// Built-in schemas.
var (
	Safety      = mustLoad("safety_result", "safety.json", true)
	Canonical   = mustLoad("canonical_habit", "canonical.json", true)
	QuizForm    = mustLoad("quiz_form", "quiz_form.json", false)
	QuizSummary = mustLoad("quiz_summary", "quiz_summary.json", true)
	Plan21      = mustLoad("plan_21d", "plan21.json", true)
)

// All returns the built-in schemas.
func All() []*Schema {
	return []*Schema{Safety, Canonical, QuizForm, QuizSummary, Plan21}
}

func mustLoad(name, file string, strict bool) *Schema {
	raw, err := embeddedSchemas.ReadFile("schemas/" + file)
	if err != nil {
		panic(fmt.Sprintf("schema: read %s: %v", file, err))
	}
	s, err := Compile(name, raw, strict)
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return s
}

// Compile builds a Schema from a raw JSON Schema document.
func Compile(name string, raw []byte, strict bool) (*Schema, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid schema %s: not valid JSON", name)
	}

	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{Name: name, Strict: strict, raw: raw, compiled: compiled}, nil
}

// Map returns a copy of the schema document for provider request bodies.
// The "$schema" and "title" keywords are omitted.
func (s *Schema) Map() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(s.raw, &out)
	delete(out, "$schema")
	delete(out, "title")
	return out
}

// Validate checks a decoded JSON value (as produced by encoding/json into
// an any) against the schema.
func (s *Schema) Validate(v any) error {
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %s: %s", ErrInvalid, s.Name, describe(verr))
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalid, s.Name, err)
}

// ValidateJSON decodes raw and validates it, returning the decoded value.
func (s *Schema) ValidateJSON(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Name, err)
	}
	if err := s.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// describe flattens the leaf causes of a validation error.
func describe(verr *jsonschema.ValidationError) string {
	var parts []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			parts = append(parts, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return strings.Join(parts, "; ")
}
