package agent

import (
	"context"
	"log/slog"
	"sync"
)

// HookEvent names a lifecycle point external code can observe.
type HookEvent string

const (
	HookRunStart      HookEvent = "on_run_start"
	HookRunEnd        HookEvent = "on_run_end"
	HookStepStart     HookEvent = "on_step_start"
	HookStepEnd       HookEvent = "on_step_end"
	HookLLMStart      HookEvent = "on_llm_start"
	HookLLMEnd        HookEvent = "on_llm_end"
	HookToolStart     HookEvent = "on_tool_start"
	HookToolEnd       HookEvent = "on_tool_end"
	HookGuardrailTrip HookEvent = "on_guardrail_trip"
)

// HookFunc observes one event. The payload is read-only; hooks must not
// mutate it.
type HookFunc func(ctx context.Context, payload map[string]interface{})

// HookManager holds hook registrations for one agent. Safe for concurrent
// dispatch; a panicking hook is logged and never crashes the run.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[HookEvent][]HookFunc
}

func NewHookManager() *HookManager {
	return &HookManager{hooks: make(map[HookEvent][]HookFunc)}
}

// Register adds a callback for an event.
func (m *HookManager) Register(event HookEvent, fn HookFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[event] = append(m.hooks[event], fn)
}

// Clear drops all callbacks for an event, or every callback when event is
// empty.
func (m *HookManager) Clear(event HookEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event == "" {
		m.hooks = make(map[HookEvent][]HookFunc)
		return
	}
	delete(m.hooks, event)
}

// HasHooks reports whether any callback is registered for the event.
func (m *HookManager) HasHooks(event HookEvent) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[event]) > 0
}

// Dispatch fires every callback registered for the event, in registration
// order.
func (m *HookManager) Dispatch(ctx context.Context, event HookEvent, payload map[string]interface{}) {
	if m == nil {
		return
	}
	m.mu.RLock()
	callbacks := m.hooks[event]
	m.mu.RUnlock()

	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["event"] = string(event)

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("hook panicked", "event", event, "panic", r)
				}
			}()
			cb(ctx, payload)
		}()
	}
}
