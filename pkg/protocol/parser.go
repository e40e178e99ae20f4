package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseToolCall normalizes a model-emitted tool invocation into a ToolCall.
// It is the only place in the codebase that understands provider shapes:
//
//   - a ToolCall or *ToolCall is passed through (with an id synthesized if
//     missing),
//   - OpenAI function calling: {"id": ..., "function": {"name": ...,
//     "arguments": "<json string>"}},
//   - MCP: {"name": ..., "input": {...}} (an "arguments" key is accepted in
//     place of "input").
//
// Raw JSON ([]byte or json.RawMessage) is decoded first. Arguments given as
// a JSON string are decoded into a map; a malformed string yields an
// *ArgumentDecodeError carrying the call id and tool name so the caller can
// record an error result and keep the run going.
func ParseToolCall(raw interface{}) (*ToolCall, error) {
	switch v := raw.(type) {
	case *ToolCall:
		if v == nil {
			return nil, &ToolCallParseError{Reason: "nil tool call"}
		}
		return normalize(*v)
	case ToolCall:
		return normalize(v)
	case json.RawMessage:
		return parseJSON([]byte(v))
	case []byte:
		return parseJSON(v)
	case map[string]interface{}:
		return parseMap(v)
	default:
		return nil, &ToolCallParseError{Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
}

// ParseToolCalls normalizes a batch, preserving input order. The first
// shape-level failure aborts; argument decode failures are returned per
// call by ParseToolCall and handled by the caller.
func ParseToolCalls(raw []interface{}) ([]*ToolCall, error) {
	calls := make([]*ToolCall, 0, len(raw))
	for _, r := range raw {
		tc, err := ParseToolCall(r)
		if err != nil {
			return nil, err
		}
		calls = append(calls, tc)
	}
	return calls, nil
}

// SynthesizeCallID generates an id for providers that omit one.
func SynthesizeCallID() string {
	return "tc_" + uuid.New().String()
}

func normalize(tc ToolCall) (*ToolCall, error) {
	if tc.Name == "" {
		return nil, &ToolCallParseError{Reason: "missing tool name"}
	}
	if tc.ID == "" {
		tc.ID = SynthesizeCallID()
	}
	if tc.Args == nil {
		tc.Args = map[string]interface{}{}
	}
	return &tc, nil
}

func parseJSON(data []byte) (*ToolCall, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ToolCallParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return parseMap(m)
}

func parseMap(m map[string]interface{}) (*ToolCall, error) {
	id, _ := m["id"].(string)
	if id == "" {
		id = SynthesizeCallID()
	}

	// OpenAI function-calling shape.
	if fn, ok := m["function"].(map[string]interface{}); ok {
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, &ToolCallParseError{Reason: "function shape missing name"}
		}
		args, err := decodeArgs(id, name, fn["arguments"])
		if err != nil {
			return nil, err
		}
		return &ToolCall{ID: id, Name: name, Args: args}, nil
	}

	// MCP shape (and the canonical map encoding, which shares the keys).
	name, _ := m["name"].(string)
	if name == "" {
		return nil, &ToolCallParseError{Reason: "missing name"}
	}
	rawArgs, ok := m["input"]
	if !ok {
		rawArgs = m["arguments"]
	}
	args, err := decodeArgs(id, name, rawArgs)
	if err != nil {
		return nil, err
	}
	return &ToolCall{ID: id, Name: name, Args: args}, nil
}

func decodeArgs(callID, name string, raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case string:
		if v == "" {
			return map[string]interface{}{}, nil
		}
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(v), &args); err != nil {
			return nil, &ArgumentDecodeError{CallID: callID, ToolName: name, Err: err}
		}
		return args, nil
	case json.RawMessage:
		return decodeArgs(callID, name, string(v))
	default:
		return nil, &ArgumentDecodeError{CallID: callID, ToolName: name,
			Err: fmt.Errorf("arguments must be an object or JSON string, got %T", raw)}
	}
}
