package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
	"github.com/Ravikumarchavva/agent-framework/pkg/tools"
)

// parsedCall is one tool-call request after normalization. parseErr holds an
// argument decode failure; the call is still recorded so the model can
// self-correct.
type parsedCall struct {
	call     *protocol.ToolCall
	parseErr error
}

// runStep executes one Think-Act-Observe iteration: one LLM call, then tool
// dispatch for any requested calls. Errors returned here are engine-level;
// tool failures are folded into the StepResult.
func (a *Agent) runStep(ctx context.Context, runID string, step int, emit func(Event)) (*StepResult, error) {
	var turn *turnResult
	var err error
	if emit != nil {
		turn, err = a.streamThink(ctx, step, emit)
	} else {
		turn, err = a.think(ctx, step)
	}
	if err != nil {
		return nil, err
	}

	parsed := normalizeCalls(turn.ToolCalls)

	canonical := make([]*protocol.ToolCall, len(parsed))
	for i, pc := range parsed {
		canonical[i] = pc.call
	}
	assistant := protocol.NewAssistantMessage(turn.Text, canonical)
	assistant.FinishReason = turn.FinishReason
	assistant.Usage = turn.Usage
	if err := a.memory.Append(assistant); err != nil {
		return nil, fmt.Errorf("appending assistant message: %w", err)
	}

	if len(parsed) == 0 {
		return &StepResult{
			Step:         step,
			Thought:      turn.Text,
			ToolCalls:    []ToolCallRecord{},
			Usage:        turn.Usage,
			FinishReason: "stop",
		}, nil
	}

	records, err := a.act(ctx, runID, step, parsed, emit)
	if err != nil {
		return nil, err
	}

	return &StepResult{
		Step:         step,
		Thought:      turn.Text,
		ToolCalls:    records,
		Usage:        turn.Usage,
		FinishReason: "tool_calls",
	}, nil
}

// think performs the LLM call with span, metrics and hooks.
func (a *Agent) think(ctx context.Context, step int) (*turnResult, error) {
	messages := a.memory.Snapshot()
	defs := a.registry.Definitions()

	a.hooks.Dispatch(ctx, HookLLMStart, map[string]interface{}{
		"agent_name":    a.name,
		"step":          step,
		"message_count": len(messages),
		"tool_count":    len(defs),
	})

	tracer := observability.GetTracer("agent-framework.agent")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(attribute.Int("step", step), attribute.Int("message_count", len(messages))),
	)
	defer span.End()

	start := time.Now()
	turn, err := a.provider.Generate(ctx, messages, defs, a.generateOptions())
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")

	a.hooks.Dispatch(ctx, HookLLMEnd, map[string]interface{}{
		"agent_name":     a.name,
		"step":           step,
		"duration_ms":    float64(elapsed.Milliseconds()),
		"usage":          turn.Usage,
		"has_tool_calls": len(turn.ToolCalls) > 0,
	})

	return &turnResult{
		Text:         turn.Text,
		ToolCalls:    turn.ToolCalls,
		Usage:        turn.Usage,
		FinishReason: turn.FinishReason,
	}, nil
}

// turnResult mirrors the provider turn so the streaming path can feed the
// same Act machinery.
type turnResult struct {
	Text         string
	ToolCalls    []interface{}
	Usage        *protocol.UsageStats
	FinishReason string
}

// normalizeCalls runs every raw payload through the shared parser. A decode
// failure keeps its slot with the call identity recovered from the error.
func normalizeCalls(raw []interface{}) []parsedCall {
	parsed := make([]parsedCall, 0, len(raw))
	for _, rc := range raw {
		tc, err := protocol.ParseToolCall(rc)
		if err != nil {
			var decodeErr *protocol.ArgumentDecodeError
			if errors.As(err, &decodeErr) {
				parsed = append(parsed, parsedCall{
					call: &protocol.ToolCall{
						ID:   decodeErr.CallID,
						Name: decodeErr.ToolName,
						Args: map[string]interface{}{},
					},
					parseErr: err,
				})
				continue
			}
			// Unrecognized shapes still get a recorded slot.
			parsed = append(parsed, parsedCall{
				call: &protocol.ToolCall{
					ID:   protocol.SynthesizeCallID(),
					Name: "unknown",
					Args: map[string]interface{}{},
				},
				parseErr: err,
			})
			continue
		}
		parsed = append(parsed, parsedCall{call: tc})
	}
	return parsed
}

// act executes the step's tool calls and appends their results to memory in
// model-emitted order. Parallel execution changes scheduling only, never
// ordering.
func (a *Agent) act(ctx context.Context, runID string, step int, parsed []parsedCall, emit func(Event)) ([]ToolCallRecord, error) {
	for _, pc := range parsed {
		if pc.parseErr != nil {
			continue
		}
		gctx := &GuardrailContext{
			AgentName:     a.name,
			RunID:         runID,
			ToolName:      pc.call.Name,
			ToolArguments: pc.call.Args,
		}
		results, err := runGuardrails(ctx, a.guardrails, GuardrailToolCall, gctx)
		a.guardrailAudit = append(a.guardrailAudit, results...)
		if err != nil {
			return nil, err
		}
	}

	records := make([]ToolCallRecord, len(parsed))

	if a.opts.ParallelToolCalls && len(parsed) > 1 {
		// Events keep model-emitted order: all starts, then all finishes,
		// since interleaving from worker goroutines would be nondeterministic.
		for _, pc := range parsed {
			emitEvent(emit, Event{Type: EventToolCallStarted, Step: step, ToolName: pc.call.Name, CallID: pc.call.ID})
		}
		var g errgroup.Group
		for i, pc := range parsed {
			g.Go(func() error {
				records[i] = a.executeCall(ctx, step, pc)
				return nil
			})
		}
		_ = g.Wait()
		for i := range records {
			emitEvent(emit, Event{Type: EventToolCallFinished, Step: step, ToolName: records[i].ToolName, CallID: records[i].CallID, Record: &records[i]})
		}
	} else {
		for i, pc := range parsed {
			emitEvent(emit, Event{Type: EventToolCallStarted, Step: step, ToolName: pc.call.Name, CallID: pc.call.ID})
			records[i] = a.executeCall(ctx, step, pc)
			emitEvent(emit, Event{Type: EventToolCallFinished, Step: step, ToolName: records[i].ToolName, CallID: records[i].CallID, Record: &records[i]})
		}
	}

	// Observe: tool results enter memory in the order the model emitted the
	// calls, regardless of completion order.
	for i, record := range records {
		msg := protocol.NewToolResultMessage(
			record.CallID,
			record.ToolName,
			[]protocol.ContentBlock{protocol.TextBlock(record.Result)},
			record.IsError,
		)
		if err := a.memory.Append(msg); err != nil {
			return nil, fmt.Errorf("appending tool result %d: %w", i, err)
		}
	}

	return records, nil
}

// executeCall runs one tool call with timing, timeout and panic isolation.
// Every failure mode lands in the record; nothing propagates.
func (a *Agent) executeCall(ctx context.Context, step int, pc parsedCall) ToolCallRecord {
	start := time.Now()
	record := ToolCallRecord{
		ToolName:  pc.call.Name,
		CallID:    pc.call.ID,
		Arguments: pc.call.Args,
		Timestamp: start.UTC(),
	}

	a.hooks.Dispatch(ctx, HookToolStart, map[string]interface{}{
		"agent_name": a.name,
		"tool_name":  pc.call.Name,
		"arguments":  pc.call.Args,
		"step":       step,
	})

	if a.opts.Verbose {
		slog.Info("executing tool", "agent", a.name, "tool", pc.call.Name, "args", argsPreview(pc.call.Args))
	}

	switch {
	case pc.parseErr != nil:
		record.IsError = true
		record.Result = fmt.Sprintf("argument decode error: %v", pc.parseErr)

	default:
		if _, ok := a.registry.Get(pc.call.Name); !ok {
			record.IsError = true
			record.Result = fmt.Sprintf("unknown tool: %s", pc.call.Name)
			break
		}
		result, err := a.executeWithTimeout(ctx, pc.call.Name, pc.call.Args)
		switch {
		case err != nil:
			record.IsError = true
			record.Result = err.Error()
		default:
			record.IsError = result.IsError
			record.Result = result.Text()
		}
	}

	record.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0

	a.hooks.Dispatch(ctx, HookToolEnd, map[string]interface{}{
		"agent_name":  a.name,
		"tool_name":   pc.call.Name,
		"is_error":    record.IsError,
		"duration_ms": record.DurationMs,
		"step":        step,
	})

	return record
}

// executeWithTimeout enforces the per-tool wall-clock budget. The invocation
// runs in its own goroutine so a non-cooperative tool cannot stall the loop;
// panics inside the tool become error results.
func (a *Agent) executeWithTimeout(ctx context.Context, name string, args map[string]interface{}) (tools.ToolResult, error) {
	timeout := a.opts.PerToolTimeout
	if timeout <= 0 {
		timeout = DefaultPerToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result tools.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, r)}
			}
		}()
		result, err := a.registry.Execute(callCtx, name, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return tools.ToolResult{}, fmt.Errorf("tool %s timed out after %s", name, timeout)
		}
		return tools.ToolResult{}, callCtx.Err()
	}
}

// argsPreview flattens arguments for log lines without flooding them.
func argsPreview(args map[string]interface{}) string {
	payload, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	if len(payload) > 120 {
		return string(payload[:120]) + "..."
	}
	return string(payload)
}
