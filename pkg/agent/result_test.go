package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

func TestAggregatedUsageAdd(t *testing.T) {
	var usage AggregatedUsage
	usage.Add(&protocol.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	usage.Add(nil)
	usage.Add(&protocol.UsageStats{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})

	assert.Equal(t, 3, usage.LLMCalls, "nil usage still counts the call")
	assert.Equal(t, 17, usage.PromptTokens)
	assert.Equal(t, 8, usage.CompletionTokens)
	assert.Equal(t, 25, usage.TotalTokens)
}

func TestRunResultJSONRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	original := &AgentRunResult{
		RunID:     "run-1",
		AgentName: "calc",
		Output:    "42",
		Status:    StatusCompleted,
		Steps: []StepResult{
			{
				Step:    1,
				Thought: "need the calculator",
				ToolCalls: []ToolCallRecord{{
					ToolName:   "calculator",
					CallID:     "call_1",
					Arguments:  map[string]interface{}{"expression": "6*7"},
					Result:     "42",
					DurationMs: 1.5,
					Timestamp:  start,
				}},
				Usage:        &protocol.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
				FinishReason: "tool_calls",
			},
			{Step: 2, Thought: "42", ToolCalls: []ToolCallRecord{}, FinishReason: "stop"},
		},
		Usage:           AggregatedUsage{PromptTokens: 30, CompletionTokens: 11, TotalTokens: 41, LLMCalls: 2},
		ToolCallsTotal:  1,
		ToolCallsByName: map[string]int{"calculator": 1},
		StartTime:       start,
		EndTime:         start.Add(2 * time.Second),
		DurationSeconds: 2.0,
		MaxIterations:   10,
	}

	payload, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestFromJSONRejectsGarbage(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	result := &AgentRunResult{
		AgentName:       "calc",
		Status:          StatusCompleted,
		Steps:           []StepResult{{Step: 1}, {Step: 2}},
		Usage:           AggregatedUsage{TotalTokens: 41},
		ToolCallsTotal:  3,
		ToolCallsByName: map[string]int{"search": 2, "calculator": 1},
		DurationSeconds: 2.5,
		MaxIterations:   10,
	}

	summary := result.Summary()
	assert.Contains(t, summary, "[completed] calc")
	assert.Contains(t, summary, "2/10 steps")
	assert.Contains(t, summary, "3 tool calls")
	// Names sort alphabetically.
	assert.Contains(t, summary, "calculatorx1, searchx2")
	assert.Contains(t, summary, "41 tokens")
	assert.Contains(t, summary, "2.50s")
}

func TestSummaryWithoutTools(t *testing.T) {
	result := &AgentRunResult{
		AgentName:     "chat",
		Status:        StatusMaxIterations,
		MaxIterations: 5,
	}
	assert.Contains(t, result.Summary(), "(none)")
	assert.Contains(t, result.Summary(), "[max_iterations_reached]")
}
