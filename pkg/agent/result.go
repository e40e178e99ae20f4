// Package agent implements the Think-Act-Observe loop: the step executor,
// the run controller, lifecycle hooks, guardrails and the serializable run
// trace they produce.
package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// RunStatus is the terminal state of a run. Exactly one is set.
type RunStatus string

const (
	StatusCompleted     RunStatus = "completed"
	StatusMaxIterations RunStatus = "max_iterations_reached"
	StatusError         RunStatus = "error"
	StatusCancelled     RunStatus = "cancelled"
)

// ToolCallRecord captures one executed tool call. Created exactly once per
// call, immutable afterwards.
type ToolCallRecord struct {
	ToolName   string                 `json:"tool_name"`
	CallID     string                 `json:"call_id"`
	Arguments  map[string]interface{} `json:"arguments"`
	Result     string                 `json:"result"`
	IsError    bool                   `json:"is_error"`
	DurationMs float64                `json:"duration_ms"`
	Timestamp  time.Time              `json:"timestamp"`
}

// StepResult is one Think-Act-Observe cycle. FinishReason is "stop",
// "tool_calls" or "error".
type StepResult struct {
	Step         int                  `json:"step"`
	Thought      string               `json:"thought"`
	ToolCalls    []ToolCallRecord     `json:"tool_calls"`
	Usage        *protocol.UsageStats `json:"usage,omitempty"`
	FinishReason string               `json:"finish_reason"`
}

// HasToolCalls reports whether this step requested any tools.
func (s *StepResult) HasToolCalls() bool {
	return len(s.ToolCalls) > 0
}

// AggregatedUsage accumulates token spend across all LLM calls in a run.
type AggregatedUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	LLMCalls         int `json:"llm_calls"`
}

// Add folds one call's usage in. Nil usage still counts the call.
func (u *AggregatedUsage) Add(usage *protocol.UsageStats) {
	u.LLMCalls++
	if usage == nil {
		return
	}
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	u.TotalTokens += usage.TotalTokens
}

// AgentRunResult is the single source of truth for one run. Nothing here
// duplicates information derivable from Steps except the pre-computed
// aggregates.
type AgentRunResult struct {
	RunID     string    `json:"run_id"`
	AgentName string    `json:"agent_name"`
	Output    string    `json:"output"`
	Status    RunStatus `json:"status"`

	Steps []StepResult    `json:"steps"`
	Usage AggregatedUsage `json:"usage"`

	ToolCallsTotal  int            `json:"tool_calls_total"`
	ToolCallsByName map[string]int `json:"tool_calls_by_name"`

	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`

	Error string `json:"error,omitempty"`

	GuardrailResults []GuardrailResult `json:"guardrail_results,omitempty"`

	MaxIterations int `json:"max_iterations"`
}

// StepsUsed reports how many iterations ran.
func (r *AgentRunResult) StepsUsed() int {
	return len(r.Steps)
}

// Success reports natural completion.
func (r *AgentRunResult) Success() bool {
	return r.Status == StatusCompleted
}

// ToJSON renders the canonical trace.
func (r *AgentRunResult) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON restores a trace produced by ToJSON.
func FromJSON(data []byte) (*AgentRunResult, error) {
	var r AgentRunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding run result: %w", err)
	}
	return &r, nil
}

// Summary renders a one-line human-readable digest.
func (r *AgentRunResult) Summary() string {
	toolInfo := "none"
	if len(r.ToolCallsByName) > 0 {
		names := make([]string, 0, len(r.ToolCallsByName))
		for name := range r.ToolCallsByName {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%sx%d", name, r.ToolCallsByName[name]))
		}
		toolInfo = strings.Join(parts, ", ")
	}

	return fmt.Sprintf("[%s] %s | %d/%d steps | %d tool calls (%s) | %d tokens | %.2fs",
		r.Status, r.AgentName,
		r.StepsUsed(), r.MaxIterations,
		r.ToolCallsTotal, toolInfo,
		r.Usage.TotalTokens,
		r.DurationSeconds,
	)
}
