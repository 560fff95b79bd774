package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sgrlabs/sgragent/core"
)

// compiledSchema pairs a raw parameter schema with its compiled validator.
type compiledSchema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// compileSchema compiles a raw parameter schema map into a validator.
// A nil raw schema compiles to a nil validator that accepts anything.
func compileSchema(raw map[string]any) (*compiledSchema, error) {
	if raw == nil {
		return &compiledSchema{}, nil
	}

	schemaJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	schemaData, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &compiledSchema{raw: raw, compiled: compiled}, nil
}

// validate checks data against the compiled schema.
func (s *compiledSchema) validate(data map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	return s.compiled.Validate(data)
}

// ParseArguments unmarshals a raw JSON argument payload and validates it
// against the tool's parameter schema. Failures are reported as
// *core.ToolArgumentError so the execution loop can take its recoverable
// fallback path.
func (r *Registry) ParseArguments(t Tool, rawArgs string) (map[string]any, error) {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, &core.ToolArgumentError{Tool: t.Name(), Err: err}
		}
	}

	schema, err := r.schemaFor(t)
	if err != nil {
		return nil, &core.ToolArgumentError{Tool: t.Name(), Err: err}
	}
	if err := schema.validate(args); err != nil {
		return nil, &core.ToolArgumentError{Tool: t.Name(), Err: err}
	}

	return args, nil
}
