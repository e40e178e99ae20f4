// Package memory holds the conversation log an agent reasons over. All
// strategies expose the same operations; retention policy is the only thing
// that varies. A system instruction at index 0 survives every eviction.
package memory

import (
	"fmt"
	"sync"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// Memory is an ordered conversation log. Append is O(1); Snapshot returns a
// copied slice the caller may hold across later appends. Messages are
// treated as immutable once appended.
type Memory interface {
	Append(msg *protocol.Message) error
	Snapshot() []*protocol.Message
	Clear()
	Len() int
	ApproxTokens() int
}

// New builds a memory from config.
func New(cfg *config.MemoryConfig) (Memory, error) {
	switch cfg.Strategy {
	case "", "unbounded":
		return NewUnbounded(), nil
	case "buffer_window":
		return NewBufferWindow(cfg.WindowSize), nil
	case "token_window":
		return NewTokenWindow(cfg.Budget, ""), nil
	case "sql":
		return NewSQLMemory(cfg)
	default:
		return nil, fmt.Errorf("unknown memory strategy %q", cfg.Strategy)
	}
}

// Unbounded keeps every message for the life of the process.
type Unbounded struct {
	mu       sync.RWMutex
	messages []*protocol.Message
	tokens   tokenEstimator
}

func NewUnbounded() *Unbounded {
	return &Unbounded{tokens: newTokenEstimator("")}
}

func (m *Unbounded) Append(msg *protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Unbounded) Snapshot() []*protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*protocol.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Unbounded) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func (m *Unbounded) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *Unbounded) ApproxTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.estimate(m.messages)
}
