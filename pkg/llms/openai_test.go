package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAIProvider(&config.LLMProviderConfig{
		Type:       "openai",
		Model:      "gpt-4o",
		APIKey:     "sk-test",
		Host:       server.URL,
		MaxRetries: 1,
		RetryDelay: 1,
		Timeout:    5,
	})
}

func TestGenerateText(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message":       map[string]interface{}{"role": "assistant", "content": "4"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13},
		})
	})

	turn, err := p.Generate(context.Background(), []*protocol.Message{
		protocol.NewSystemMessage("You are terse."),
		protocol.NewUserMessage("What is 2+2?"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "4", turn.Text)
	assert.Empty(t, turn.ToolCalls)
	assert.Equal(t, "stop", turn.FinishReason)
	assert.Equal(t, 13, turn.Usage.TotalTokens)
}

func TestGenerateToolCalls(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "get_weather", req.Tools[0].Function.Name)
		assert.Equal(t, "auto", req.ToolChoice)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]interface{}{
					"role": "assistant",
					"tool_calls": []map[string]interface{}{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]interface{}{
								"name":      "get_weather",
								"arguments": `{"city":"Paris"}`,
							},
						},
						{
							"id":   "call_2",
							"type": "function",
							"function": map[string]interface{}{
								"name":      "get_weather",
								"arguments": `{"city":"Tokyo"}`,
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30},
		})
	})

	tools := []ToolDefinition{{
		Name:        "get_weather",
		Description: "Get weather for a city",
		Parameters:  map[string]interface{}{"type": "object"},
	}}
	turn, err := p.Generate(context.Background(), []*protocol.Message{protocol.NewUserMessage("weather?")}, tools, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", turn.FinishReason)
	require.Len(t, turn.ToolCalls, 2)

	// The raw payloads normalize through the shared parser in call order.
	first, err := protocol.ParseToolCall(turn.ToolCalls[0])
	require.NoError(t, err)
	assert.Equal(t, "call_1", first.ID)
	assert.Equal(t, "Paris", first.Args["city"])

	second, err := protocol.ParseToolCall(turn.ToolCalls[1])
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", second.Args["city"])
}

func TestGenerateSendsConversationProtocol(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 4)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		require.Len(t, req.Messages[2].ToolCalls, 1)
		assert.Equal(t, `{"q":"go"}`, req.Messages[2].ToolCalls[0].Function.Arguments)
		assert.Equal(t, "tool", req.Messages[3].Role)
		assert.Equal(t, "tc_1", req.Messages[3].ToolCallID)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message":       map[string]interface{}{"role": "assistant", "content": "done"},
				"finish_reason": "stop",
			}},
		})
	})

	assistant := protocol.NewAssistantMessage("", []*protocol.ToolCall{
		{ID: "tc_1", Name: "search", Args: map[string]interface{}{"q": "go"}},
	})
	result := protocol.NewToolResultMessage("tc_1", "search", []protocol.ContentBlock{protocol.TextBlock("hit")}, false)

	_, err := p.Generate(context.Background(), []*protocol.Message{
		protocol.NewSystemMessage("sys"),
		protocol.NewUserMessage("go docs"),
		assistant,
		result,
	}, nil, nil)
	require.NoError(t, err)
}

func TestGeneratePermanentError(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "bad key", "type": "invalid_request_error"},
		})
	})

	_, err := p.Generate(context.Background(), []*protocol.Message{protocol.NewUserMessage("hi")}, nil, nil)
	var permErr *PermanentError
	require.True(t, errors.As(err, &permErr))
	assert.Equal(t, http.StatusUnauthorized, permErr.StatusCode)
	assert.Contains(t, permErr.Message, "bad key")
	assert.False(t, IsTransient(err))
}

func TestGenerateTransientError(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.Generate(context.Background(), []*protocol.Message{protocol.NewUserMessage("hi")}, nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestGenerateStreaming(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"\"go\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":5,"total_tokens":14}}`,
			`[DONE]`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	})

	ch, err := p.GenerateStreaming(context.Background(), []*protocol.Message{protocol.NewUserMessage("hi")}, nil, nil)
	require.NoError(t, err)

	var text string
	var toolCalls []*protocol.ToolCall
	var done *StreamChunk
	for chunk := range ch {
		switch chunk.Type {
		case "text":
			text += chunk.Text
		case "tool_call":
			tc, err := protocol.ParseToolCall(chunk.ToolCall)
			require.NoError(t, err)
			toolCalls = append(toolCalls, tc)
		case "done":
			c := chunk
			done = &c
		case "error":
			t.Fatalf("unexpected error chunk: %v", chunk.Error)
		}
	}

	assert.Equal(t, "Hello", text)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0].ID)
	assert.Equal(t, "go", toolCalls[0].Args["q"])
	require.NotNil(t, done)
	assert.Equal(t, "tool_calls", done.FinishReason)
	assert.Equal(t, 14, done.Usage.TotalTokens)
}

func TestToolChoiceMapping(t *testing.T) {
	assert.Equal(t, "auto", openAIToolChoice(nil))
	assert.Equal(t, "required", openAIToolChoice(&GenerateOptions{ToolChoice: ToolChoiceRequired}))
	assert.Equal(t, "none", openAIToolChoice(&GenerateOptions{ToolChoice: ToolChoiceNone}))

	forced := openAIToolChoice(&GenerateOptions{ToolChoice: "calculator"}).(map[string]interface{})
	assert.Equal(t, "function", forced["type"])
}
