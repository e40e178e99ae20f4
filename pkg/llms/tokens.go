package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// TokenCounter estimates token usage per model using tiktoken encodings.
// When no encoding is available it falls back to a chars/4 heuristic, which
// stays within the accuracy needed for window eviction decisions.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter builds a counter for the model. Unknown models fall back
// to the cl100k_base encoding, then to the heuristic.
func NewTokenCounter(model string) *TokenCounter {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()
	if exists {
		return &TokenCounter{encoding: cached, model: model}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &TokenCounter{model: model}
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}
}

// Count returns the token count for a text fragment.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessage counts one message including role framing overhead.
func (tc *TokenCounter) CountMessage(msg *protocol.Message) int {
	if msg == nil {
		return 0
	}
	// Per-message framing per the OpenAI token counting cookbook.
	total := 3
	total += tc.Count(string(msg.Role))
	total += tc.Count(msg.Text())
	for _, call := range msg.ToolCalls {
		total += tc.Count(call.Name)
		for k := range call.Args {
			total += tc.Count(k)
		}
	}
	return total
}

// CountMessages counts a conversation, including the reply priming tokens.
func (tc *TokenCounter) CountMessages(messages []*protocol.Message) int {
	total := 3
	for _, msg := range messages {
		total += tc.CountMessage(msg)
	}
	return total
}

// Model returns the model this counter was built for.
func (tc *TokenCounter) Model() string { return tc.model }
