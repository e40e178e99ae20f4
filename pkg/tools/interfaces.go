// Package tools defines the tool abstraction the agent loop executes against,
// the registry that exposes tools to LLM providers, and the built-in and
// remote (MCP) tool implementations.
package tools

import (
	"context"
	"strings"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// ToolInfo describes a tool to the model. InputSchema is a JSON-Schema
// object with "type", "properties" and "required" keys.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`

	// Source names where the tool came from ("builtin" or an MCP server name).
	Source string `json:"source,omitempty"`
}

// ToolResult is the outcome of one tool execution. IsError marks a failed
// execution whose content is an error description fed back to the model.
type ToolResult struct {
	Content []protocol.ContentBlock `json:"content"`
	IsError bool                    `json:"is_error"`
}

// Text flattens all text blocks into a single string.
func (r ToolResult) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// NewTextResult builds a successful single-text result.
func NewTextResult(text string) ToolResult {
	return ToolResult{Content: []protocol.ContentBlock{protocol.TextBlock(text)}}
}

// NewErrorResult builds an error result carrying the given description.
func NewErrorResult(text string) ToolResult {
	return ToolResult{
		Content: []protocol.ContentBlock{protocol.TextBlock(text)},
		IsError: true,
	}
}

// Tool is a capability the agent can invoke. Execute returns a non-nil error
// only for infrastructure failures; domain failures are reported through
// ToolResult.IsError so the loop can surface them to the model.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error)
}

// ToolSource discovers tools from an external system, such as an MCP server.
type ToolSource interface {
	Name() string
	Discover(ctx context.Context) error
	Tools() []Tool
	Close() error
}
