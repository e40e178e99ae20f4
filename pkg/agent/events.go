package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
)

// EventType labels one streaming event.
type EventType string

const (
	EventStepStarted      EventType = "step_started"
	EventDelta            EventType = "delta"
	EventToolCallStarted  EventType = "tool_call_started"
	EventToolCallFinished EventType = "tool_call_finished"
	EventStepFinished     EventType = "step_finished"
	EventRunFinished      EventType = "run_finished"
)

// Event is one element of a RunStream. Fields beyond Type and Step are
// populated per event kind: Delta carries text, tool call events carry the
// call identity (and the Record once finished), StepFinished carries the
// step, and RunFinished carries the full result.
type Event struct {
	Type       EventType       `json:"type"`
	Step       int             `json:"step,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Record     *ToolCallRecord `json:"record,omitempty"`
	StepResult *StepResult     `json:"step_result,omitempty"`
	Result     *AgentRunResult `json:"result,omitempty"`
}

func emitEvent(emit func(Event), evt Event) {
	if emit != nil {
		emit(evt)
	}
}

// RunStream runs the loop like Run but delivers progress as a totally
// ordered event stream. The channel carries exactly one RunFinished event
// last and is closed afterwards; callers must drain it.
func (a *Agent) RunStream(ctx context.Context, input string) (<-chan Event, error) {
	if input == "" {
		return nil, fmt.Errorf("input must not be empty")
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		emit := func(evt Event) { ch <- evt }

		result, err := a.run(ctx, input, emit)
		if err != nil {
			result = &AgentRunResult{
				AgentName: a.name,
				Status:    StatusError,
				Error:     err.Error(),
				Steps:     []StepResult{},
			}
		}
		ch <- Event{Type: EventRunFinished, Result: result}
	}()
	return ch, nil
}

// streamThink is the streaming Think phase: same call as think but text
// arrives as Delta events while the turn accumulates.
func (a *Agent) streamThink(ctx context.Context, step int, emit func(Event)) (*turnResult, error) {
	messages := a.memory.Snapshot()
	defs := a.registry.Definitions()

	a.hooks.Dispatch(ctx, HookLLMStart, map[string]interface{}{
		"agent_name":    a.name,
		"step":          step,
		"message_count": len(messages),
		"tool_count":    len(defs),
		"streaming":     true,
	})

	tracer := observability.GetTracer("agent-framework.agent")
	ctx, span := tracer.Start(ctx, "llm.generate_streaming",
		trace.WithAttributes(attribute.Int("step", step), attribute.Int("message_count", len(messages))),
	)
	defer span.End()

	start := time.Now()
	chunks, err := a.provider.GenerateStreaming(ctx, messages, defs, a.generateOptions())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	turn := &turnResult{FinishReason: "stop"}
	var text []byte
	for chunk := range chunks {
		switch chunk.Type {
		case "text":
			text = append(text, chunk.Text...)
			emitEvent(emit, Event{Type: EventDelta, Step: step, Delta: chunk.Text})
		case "tool_call":
			turn.ToolCalls = append(turn.ToolCalls, chunk.ToolCall)
		case "done":
			turn.Usage = chunk.Usage
			if chunk.FinishReason != "" {
				turn.FinishReason = chunk.FinishReason
			}
		case "error":
			span.RecordError(chunk.Error)
			span.SetStatus(codes.Error, chunk.Error.Error())
			return nil, chunk.Error
		}
	}
	turn.Text = string(text)
	span.SetStatus(codes.Ok, "")

	a.hooks.Dispatch(ctx, HookLLMEnd, map[string]interface{}{
		"agent_name":     a.name,
		"step":           step,
		"duration_ms":    float64(time.Since(start).Milliseconds()),
		"usage":          turn.Usage,
		"has_tool_calls": len(turn.ToolCalls) > 0,
		"streaming":      true,
	})

	return turn, nil
}
