// Package protocol defines the conversation message model shared by the
// agent loop, memory backends, and LLM providers. Messages are stored in
// their full canonical form; provider wire formats are produced only inside
// the llms package.
package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// ContentBlock is one piece of message content. Type selects which of the
// remaining fields are meaningful.
type ContentBlock struct {
	Type     string `json:"type"` // "text", "image", "resource"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64 payload for images
	MimeType string `json:"mime_type,omitempty"`
	URI      string `json:"uri,omitempty"` // resource blocks
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// UsageStats carries token accounting for a single model interaction.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is a single conversation turn. Once appended to memory a message
// is treated as immutable; Snapshot consumers must not modify it.
type Message struct {
	ID      string         `json:"id"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content,omitempty"`
	Name    string         `json:"name,omitempty"`

	// Assistant turns only.
	ToolCalls    []*ToolCall `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *UsageStats `json:"usage,omitempty"`

	// Tool result turns only. ToolCallID links back to the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func newMessage(role Role) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemMessage builds a system instruction message.
func NewSystemMessage(text string) *Message {
	m := newMessage(RoleSystem)
	m.Content = []ContentBlock{TextBlock(text)}
	return m
}

// NewUserMessage builds a plain-text user message.
func NewUserMessage(text string) *Message {
	m := newMessage(RoleUser)
	m.Content = []ContentBlock{TextBlock(text)}
	return m
}

// NewAssistantMessage builds an assistant turn. toolCalls may be nil for a
// final answer turn.
func NewAssistantMessage(text string, toolCalls []*ToolCall) *Message {
	m := newMessage(RoleAssistant)
	if text != "" {
		m.Content = []ContentBlock{TextBlock(text)}
	}
	m.ToolCalls = toolCalls
	return m
}

// NewToolResultMessage builds the tool result turn answering the call with
// the given id. The content is stored as-is; providers flatten it to their
// wire form.
func NewToolResultMessage(toolCallID, toolName string, content []ContentBlock, isError bool) *Message {
	m := newMessage(RoleToolResult)
	m.ToolCallID = toolCallID
	m.Name = toolName
	m.Content = content
	m.IsError = isError
	return m
}

// Text flattens all text blocks into a single string.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// HasToolCalls reports whether this assistant turn requested tool execution.
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// Encode serializes the message to its storage form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage restores a message from its storage form. A failure is
// reported as *MessageDecodeError and is fatal to the run that hits it.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &MessageDecodeError{Err: err}
	}
	if m.Role == "" {
		return nil, &MessageDecodeError{Err: errMissingRole}
	}
	return &m, nil
}
