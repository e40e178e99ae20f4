// Package functiontool turns plain Go functions into tools. The argument
// struct's json and jsonschema tags drive the generated input schema.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ravikumarchavva/agent-framework/pkg/tools"
)

// Func is the implementation signature for a typed tool.
type Func[T any] func(ctx context.Context, args T) (string, error)

// Config names and describes the tool.
type Config struct {
	Name        string
	Description string
}

type functionTool[T any] struct {
	info tools.ToolInfo
	fn   Func[T]
}

// New builds a tool whose input schema is reflected from T.
//
// Supported tags on T's fields:
//   - json:"name" for the parameter name
//   - jsonschema:"required" to mark required parameters
//   - jsonschema:"description=..." for parameter descriptions
//   - jsonschema:"default=...,enum=a|b,minimum=N,maximum=M" for constraints
//
// Example:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"default=10,minimum=1"`
//	}
func New[T any](cfg Config, fn Func[T]) (tools.Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("function tool requires a name")
	}
	if fn == nil {
		return nil, fmt.Errorf("function tool %s requires an implementation", cfg.Name)
	}

	schema, err := generateSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("generating schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[T]{
		info: tools.ToolInfo{
			Name:        cfg.Name,
			Description: cfg.Description,
			InputSchema: schema,
			Source:      "builtin",
		},
		fn: fn,
	}, nil
}

func (t *functionTool[T]) Info() tools.ToolInfo {
	return t.info
}

// Execute decodes the argument map into T and calls the function. A decode
// failure or function error becomes an error result, not an infrastructure
// error, so the model can retry with corrected arguments.
func (t *functionTool[T]) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	var typed T
	if err := json.Unmarshal(payload, &typed); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("invalid arguments for %s: %v", t.info.Name, err)), nil
	}

	output, err := t.fn(ctx, typed)
	if err != nil {
		return tools.NewErrorResult(err.Error()), nil
	}
	return tools.NewTextResult(output), nil
}
