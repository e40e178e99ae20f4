package protocol

// ToolCall is the normalized form of a model-emitted tool invocation.
// Providers and the parser produce it; nothing downstream ever sees a
// provider-specific shape.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"arguments"`
}
