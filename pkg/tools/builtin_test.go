package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       float64
	}{
		{"addition", "2 + 2", 4},
		{"precedence", "2 + 3 * 4", 14},
		{"parentheses", "(2 + 3) * 4", 20},
		{"division", "10 / 4", 2.5},
		{"modulo", "10 % 3", 1},
		{"power", "2 ** 10", 1024},
		{"caret power", "2 ^ 3", 8},
		{"power right assoc", "2 ** 3 ** 2", 512},
		{"unary minus", "-5 + 3", -2},
		{"nested", "((1 + 2) * (3 + 4)) % 5", 1},
		{"float", "0.1 + 0.2", 0.3},
	}

	calc := &CalculatorTool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := calc.Execute(context.Background(), map[string]interface{}{"expression": tt.expression})
			require.NoError(t, err)
			require.False(t, result.IsError, result.Text())

			var payload struct {
				Result     float64 `json:"result"`
				Expression string  `json:"expression"`
			}
			require.NoError(t, json.Unmarshal([]byte(result.Text()), &payload))
			assert.InDelta(t, tt.want, payload.Result, 1e-9)
			assert.Equal(t, tt.expression, payload.Expression)
		})
	}
}

func TestCalculatorErrors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"division by zero", "1 / 0"},
		{"modulo by zero", "5 % 0"},
		{"trailing operator", "2 +"},
		{"garbage", "hello"},
		{"unbalanced paren", "(1 + 2"},
	}

	calc := &CalculatorTool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := calc.Execute(context.Background(), map[string]interface{}{"expression": tt.expression})
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestCalculatorMissingArgument(t *testing.T) {
	calc := &CalculatorTool{}
	result, err := calc.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text(), "expression")
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &CurrentTimeTool{Now: func() time.Time { return fixed }}

	result, err := clock.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Datetime  string `json:"datetime"`
		Timezone  string `json:"timezone"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &payload))
	assert.Equal(t, "UTC", payload.Timezone)
	assert.Equal(t, fixed.Unix(), payload.Timestamp)
	assert.Equal(t, "2025-06-01T12:00:00Z", payload.Datetime)
}

func TestCurrentTimeUnknownTimezone(t *testing.T) {
	clock := &CurrentTimeTool{}
	result, err := clock.Execute(context.Background(), map[string]interface{}{"timezone": "Not/AZone"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestBuiltinSchemas(t *testing.T) {
	for _, tool := range Builtins() {
		info := tool.Info()
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.Description)
		assert.Equal(t, "object", info.InputSchema["type"])
		assert.Equal(t, "builtin", info.Source)
	}

	_, ok := BuiltinByName("calculator")
	assert.True(t, ok)
	_, ok = BuiltinByName("nope")
	assert.False(t, ok)
}
