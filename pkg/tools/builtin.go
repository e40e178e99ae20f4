package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Builtins returns the tools every agent gets without configuration.
func Builtins() []Tool {
	return []Tool{
		&CalculatorTool{},
		&CurrentTimeTool{},
	}
}

// BuiltinByName resolves a builtin tool by its registered name.
func BuiltinByName(name string) (Tool, bool) {
	for _, t := range Builtins() {
		if t.Info().Name == name {
			return t, true
		}
	}
	return nil, false
}

// CalculatorTool evaluates arithmetic expressions.
type CalculatorTool struct{}

func (t *CalculatorTool) Info() ToolInfo {
	return ToolInfo{
		Name:        "calculator",
		Description: "Performs basic mathematical calculations. Supports +, -, *, /, ** (power), and % (modulo).",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"expression": map[string]interface{}{
					"type":        "string",
					"description": "The mathematical expression to evaluate (e.g., '2 + 2', '10 * 5')",
				},
			},
			"required": []string{"expression"},
		},
		Source: "builtin",
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	expr, _ := args["expression"].(string)
	if expr == "" {
		return NewErrorResult("missing required argument: expression"), nil
	}

	value, err := evalExpression(expr)
	if err != nil {
		payload, _ := json.Marshal(map[string]interface{}{"error": err.Error(), "expression": expr})
		return NewErrorResult(string(payload)), nil
	}

	payload, _ := json.Marshal(map[string]interface{}{"result": value, "expression": expr})
	return NewTextResult(string(payload)), nil
}

// CurrentTimeTool reports the current date and time.
type CurrentTimeTool struct {
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (t *CurrentTimeTool) Info() ToolInfo {
	return ToolInfo{
		Name:        "get_current_time",
		Description: "Returns the current date and time in ISO format.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "Timezone name (e.g., 'UTC', 'America/New_York')",
					"default":     "UTC",
				},
			},
			"required": []string{},
		},
		Source: "builtin",
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	tz, _ := args["timezone"].(string)
	if tz == "" {
		tz = "UTC"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("unknown timezone %q", tz)), nil
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	current := now().In(loc)

	payload, _ := json.Marshal(map[string]interface{}{
		"datetime":  current.Format(time.RFC3339),
		"timezone":  tz,
		"timestamp": current.Unix(),
	})
	return NewTextResult(string(payload)), nil
}
