package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildResultsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is passed to the model as an output constraint and used
// locally to validate what comes back: an object of category → test → value,
// every leaf a non-empty string.
func BuildResultsJSONSchema(allowedCategories []string) map[string]any {
	leaf := map[string]any{
		"type":      "string",
		"minLength": 1,
	}
	category := map[string]any{
		"type":                 "object",
		"additionalProperties": leaf,
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": category,
	}
	if len(allowedCategories) > 0 {
		schema["propertyNames"] = map[string]any{"enum": allowedCategories}
	}
	return schema
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
