package llms

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema from a struct value, reduced to the
// subset the Gemini responseSchema field accepts. Gemini rejects draft
// keywords like $schema and additionalProperties, so those are stripped.
func SchemaFor(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to reflect schema: %w", err)
	}

	stripUnsupported(out)
	return out, nil
}

func stripUnsupported(schema map[string]any) {
	delete(schema, "$schema")
	delete(schema, "$id")
	delete(schema, "$defs")
	delete(schema, "additionalProperties")

	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if m, ok := p.(map[string]any); ok {
				stripUnsupported(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		stripUnsupported(items)
	}
}
