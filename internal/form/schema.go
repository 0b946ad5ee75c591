package form

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks JSON API input against the widget ranges.
type Validator struct {
	schema *jsonschema.Schema
}

// SchemaDocument renders the JSON schema of a record for these widgets.
// Properties are optional (absent values are treated as missing) but unknown
// properties are rejected.
func SchemaDocument(widgets []Widget) map[string]any {
	props := make(map[string]any, len(widgets))
	for _, w := range widgets {
		props[w.Feature] = map[string]any{
			"type":        "number",
			"minimum":     w.Min,
			"maximum":     w.Max,
			"default":     w.Default,
			"description": w.Label,
		}
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}

// CompileSchema builds a Validator for widgets.
func CompileSchema(widgets []Widget) (*Validator, error) {
	raw, err := json.Marshal(SchemaDocument(widgets))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a decoded JSON object.
func (v *Validator) Validate(values map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	return v.schema.Validate(values)
}
