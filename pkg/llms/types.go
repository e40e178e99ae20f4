// Package llms defines the model client interface and the HTTP provider
// adapters that implement it.
package llms

import (
	"context"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON-Schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Tool choice modes. Any other value names a specific tool the model must
// call.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// GenerateOptions tunes a single generation request. Nil means defaults.
type GenerateOptions struct {
	ToolChoice string
}

// RawToolCall is a provider-emitted tool call payload in the provider's own
// wire shape. protocol.ParseToolCall is the only code that interprets it.
type RawToolCall = interface{}

// AssistantTurn is one completed model response.
type AssistantTurn struct {
	Text      string
	ToolCalls []RawToolCall
	Usage     *protocol.UsageStats
	// FinishReason is "stop" or "tool_calls".
	FinishReason string
}

// StreamChunk is one element of a streaming response. The channel carries
// text deltas first, then any tool calls, then a single "done" chunk with
// usage and finish reason. An "error" chunk terminates the stream early.
type StreamChunk struct {
	Type         string // "text", "tool_call", "done", "error"
	Text         string
	ToolCall     RawToolCall
	Usage        *protocol.UsageStats
	FinishReason string
	Error        error
}

// Provider is a chat completion backend. Implementations are safe for
// concurrent use.
type Provider interface {
	// Generate runs one non-streaming completion over the full conversation.
	Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (*AssistantTurn, error)

	// GenerateStreaming runs one completion, delivering chunks in emission
	// order. The channel is closed after the terminal chunk; callers must
	// drain it.
	GenerateStreaming(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition, opts *GenerateOptions) (<-chan StreamChunk, error)

	// CountTokens estimates prompt tokens for the given messages.
	CountTokens(messages []*protocol.Message) int

	ModelName() string
	Close() error
}
