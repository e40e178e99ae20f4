package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall_Canonical(t *testing.T) {
	tc, err := ParseToolCall(&ToolCall{ID: "tc_1", Name: "search", Args: map[string]interface{}{"q": "go"}})
	require.NoError(t, err)
	assert.Equal(t, "tc_1", tc.ID)
	assert.Equal(t, "search", tc.Name)
	assert.Equal(t, "go", tc.Args["q"])
}

func TestParseToolCall_CanonicalValue(t *testing.T) {
	tc, err := ParseToolCall(ToolCall{Name: "search"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tc.ID, "tc_"), "missing id must be synthesized")
	assert.NotNil(t, tc.Args)
}

func TestParseToolCall_OpenAIShape(t *testing.T) {
	raw := map[string]interface{}{
		"id": "call_abc",
		"function": map[string]interface{}{
			"name":      "get_weather",
			"arguments": `{"city":"Paris","unit":"c"}`,
		},
	}
	tc, err := ParseToolCall(raw)
	require.NoError(t, err)
	assert.Equal(t, "call_abc", tc.ID)
	assert.Equal(t, "get_weather", tc.Name)
	assert.Equal(t, "Paris", tc.Args["city"])
	assert.Equal(t, "c", tc.Args["unit"])
}

func TestParseToolCall_MCPShape(t *testing.T) {
	raw := map[string]interface{}{
		"name":  "read_file",
		"input": map[string]interface{}{"path": "/tmp/x"},
	}
	tc, err := ParseToolCall(raw)
	require.NoError(t, err)
	assert.Equal(t, "read_file", tc.Name)
	assert.Equal(t, "/tmp/x", tc.Args["path"])
	assert.True(t, strings.HasPrefix(tc.ID, "tc_"))
}

func TestParseToolCall_MCPArgumentsKey(t *testing.T) {
	raw := map[string]interface{}{
		"name":      "read_file",
		"arguments": map[string]interface{}{"path": "/tmp/x"},
	}
	tc, err := ParseToolCall(raw)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", tc.Args["path"])
}

func TestParseToolCall_RawJSON(t *testing.T) {
	tc, err := ParseToolCall(json.RawMessage(`{"id":"call_1","function":{"name":"calc","arguments":"{\"expr\":\"1+1\"}"}}`))
	require.NoError(t, err)
	assert.Equal(t, "calc", tc.Name)
	assert.Equal(t, "1+1", tc.Args["expr"])
}

func TestParseToolCall_MalformedArguments(t *testing.T) {
	raw := map[string]interface{}{
		"id": "call_bad",
		"function": map[string]interface{}{
			"name":      "calc",
			"arguments": `{"expr": not-json`,
		},
	}
	_, err := ParseToolCall(raw)
	require.Error(t, err)

	var decodeErr *ArgumentDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "call_bad", decodeErr.CallID)
	assert.Equal(t, "calc", decodeErr.ToolName)
}

func TestParseToolCall_EmptyArgumentsString(t *testing.T) {
	raw := map[string]interface{}{
		"function": map[string]interface{}{"name": "noop", "arguments": ""},
	}
	tc, err := ParseToolCall(raw)
	require.NoError(t, err)
	assert.Empty(t, tc.Args)
}

func TestParseToolCall_UnrecognizedShape(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
	}{
		{"nil pointer", (*ToolCall)(nil)},
		{"missing name", map[string]interface{}{"id": "x"}},
		{"function without name", map[string]interface{}{"function": map[string]interface{}{}}},
		{"unsupported type", 42},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToolCall(tt.raw)
			var parseErr *ToolCallParseError
			require.True(t, errors.As(err, &parseErr), "got %v", err)
		})
	}
}

func TestParseToolCalls_PreservesOrder(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"name": "a", "input": map[string]interface{}{}},
		map[string]interface{}{"name": "b", "input": map[string]interface{}{}},
		map[string]interface{}{"name": "c", "input": map[string]interface{}{}},
	}
	calls, err := ParseToolCalls(raw)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{calls[0].Name, calls[1].Name, calls[2].Name})
}
