package functiontool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a JSON schema for T, inlined and stripped of the
// $schema and $id noise the models do not want.
func generateSchema[T any]() (map[string]interface{}, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	delete(out, "$schema")
	delete(out, "$id")

	if out["type"] != "object" {
		return out, nil
	}

	result := map[string]interface{}{
		"type":       "object",
		"properties": out["properties"],
	}
	if required, ok := out["required"]; ok {
		result["required"] = required
	}
	if addProps, ok := out["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result, nil
}
