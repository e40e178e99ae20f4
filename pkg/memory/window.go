package memory

import (
	"fmt"
	"sync"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// BufferWindow keeps the most recent N messages. A system message appended
// at index 0 is pinned and does not count against the window.
type BufferWindow struct {
	mu         sync.RWMutex
	windowSize int
	system     *protocol.Message
	messages   []*protocol.Message
	tokens     tokenEstimator
}

func NewBufferWindow(windowSize int) *BufferWindow {
	if windowSize <= 0 {
		windowSize = 50
	}
	return &BufferWindow{
		windowSize: windowSize,
		tokens:     newTokenEstimator(""),
	}
}

func (m *BufferWindow) Append(msg *protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Role == protocol.RoleSystem && m.system == nil && len(m.messages) == 0 {
		m.system = msg
		return nil
	}

	m.messages = append(m.messages, msg)
	if len(m.messages) > m.windowSize {
		evict := len(m.messages) - m.windowSize
		m.messages = append([]*protocol.Message(nil), m.messages[evict:]...)
	}
	return nil
}

func (m *BufferWindow) Snapshot() []*protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *BufferWindow) snapshotLocked() []*protocol.Message {
	out := make([]*protocol.Message, 0, len(m.messages)+1)
	if m.system != nil {
		out = append(out, m.system)
	}
	return append(out, m.messages...)
}

func (m *BufferWindow) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = nil
	m.messages = nil
}

func (m *BufferWindow) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.messages)
	if m.system != nil {
		n++
	}
	return n
}

func (m *BufferWindow) ApproxTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.estimate(m.snapshotLocked())
}

// TokenWindow evicts oldest messages until the log fits a token budget. The
// pinned system message counts toward the budget but is never evicted.
type TokenWindow struct {
	mu       sync.RWMutex
	budget   int
	system   *protocol.Message
	messages []*protocol.Message
	tokens   tokenEstimator
}

// NewTokenWindow builds a token-budget memory. The model name selects the
// tokenizer encoding; empty falls back to the default encoding.
func NewTokenWindow(budget int, model string) *TokenWindow {
	if budget <= 0 {
		budget = 8000
	}
	return &TokenWindow{
		budget: budget,
		tokens: newTokenEstimator(model),
	}
}

func (m *TokenWindow) Append(msg *protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Role == protocol.RoleSystem && m.system == nil && len(m.messages) == 0 {
		m.system = msg
		return nil
	}

	m.messages = append(m.messages, msg)
	m.evictLocked()
	return nil
}

// evictLocked drops oldest messages until within budget. The newest message
// always survives even when it alone exceeds the budget.
func (m *TokenWindow) evictLocked() {
	reserved := 0
	if m.system != nil {
		reserved = m.tokens.estimateOne(m.system)
	}

	total := reserved
	for _, msg := range m.messages {
		total += m.tokens.estimateOne(msg)
	}

	for total > m.budget && len(m.messages) > 1 {
		total -= m.tokens.estimateOne(m.messages[0])
		m.messages = m.messages[1:]
	}
	if len(m.messages) > 0 {
		m.messages = append([]*protocol.Message(nil), m.messages...)
	}
}

func (m *TokenWindow) Snapshot() []*protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *TokenWindow) snapshotLocked() []*protocol.Message {
	out := make([]*protocol.Message, 0, len(m.messages)+1)
	if m.system != nil {
		out = append(out, m.system)
	}
	return append(out, m.messages...)
}

func (m *TokenWindow) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = nil
	m.messages = nil
}

func (m *TokenWindow) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.messages)
	if m.system != nil {
		n++
	}
	return n
}

func (m *TokenWindow) ApproxTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.estimate(m.snapshotLocked())
}
