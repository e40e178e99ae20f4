package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ravikumarchavva/agent-framework/pkg/llms"
	"github.com/Ravikumarchavva/agent-framework/pkg/memory"
	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
	"github.com/Ravikumarchavva/agent-framework/pkg/tools"
)

// Agent is a configured bundle of model client, tool registry, memory and
// system instruction driven by the run controller. One agent serves one
// conversation; concurrent runs need separate agents.
type Agent struct {
	name        string
	instruction string
	provider    llms.Provider
	registry    *tools.Registry
	memory      memory.Memory
	opts        Options
	hooks       *HookManager
	guardrails  []Guardrail

	// guardrailAudit accumulates verdicts for the current run.
	guardrailAudit []GuardrailResult
}

// New assembles an agent. A nil registry gets an empty one; nil memory gets
// the unbounded strategy.
func New(name string, provider llms.Provider, registry *tools.Registry, mem memory.Memory, opts ...Option) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent requires a name")
	}
	if provider == nil {
		return nil, fmt.Errorf("agent %s requires a model provider", name)
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if mem == nil {
		mem = memory.NewUnbounded()
	}

	a := &Agent{
		name:        name,
		instruction: DefaultSystemInstruction,
		provider:    provider,
		registry:    registry,
		memory:      mem,
		opts:        defaultOptions(),
		hooks:       NewHookManager(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Memory exposes the conversation log, mainly for inspection in callers and
// tests.
func (a *Agent) Memory() memory.Memory { return a.memory }

// Reset clears memory; the system instruction reseeds on the next run.
func (a *Agent) Reset() {
	a.memory.Clear()
}

func (a *Agent) generateOptions() *llms.GenerateOptions {
	if a.opts.ToolChoice == "" || a.opts.ToolChoice == llms.ToolChoiceAuto {
		return nil
	}
	return &llms.GenerateOptions{ToolChoice: a.opts.ToolChoice}
}

// Run drives the Think-Act-Observe loop for one user input and returns the
// complete trace. The returned result always carries exactly one terminal
// status; engine failures surface as StatusError, never as a Go error,
// except for unusable input.
func (a *Agent) Run(ctx context.Context, input string) (*AgentRunResult, error) {
	if input == "" {
		return nil, fmt.Errorf("input must not be empty")
	}
	return a.run(ctx, input, nil)
}

// run is the shared controller behind Run and RunStream. A non-nil emit
// switches the Think phase to streaming and forwards lifecycle events.
func (a *Agent) run(ctx context.Context, input string, emit func(Event)) (*AgentRunResult, error) {
	if a.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.OverallTimeout)
		defer cancel()
	}

	runID := uuid.New().String()
	startWall := time.Now().UTC()
	startMono := time.Now()
	a.guardrailAudit = nil

	tracer := observability.GetTracer("agent-framework.agent")
	ctx, span := tracer.Start(ctx, "agent.run",
		trace.WithAttributes(
			attribute.String("agent.name", a.name),
			attribute.String("run.id", runID),
		),
	)
	defer span.End()

	if a.opts.Verbose {
		slog.Info("starting run", "agent", a.name, "run_id", runID)
	}
	a.hooks.Dispatch(ctx, HookRunStart, map[string]interface{}{
		"agent_name": a.name,
		"run_id":     runID,
		"input_text": input,
	})

	result := &AgentRunResult{
		RunID:           runID,
		AgentName:       a.name,
		Status:          StatusCompleted,
		Steps:           []StepResult{},
		ToolCallsByName: map[string]int{},
		StartTime:       startWall,
		MaxIterations:   a.opts.MaxIterations,
	}

	// Seed the system instruction exactly once per conversation.
	if a.memory.Len() == 0 && a.instruction != "" {
		if err := a.memory.Append(protocol.NewSystemMessage(a.instruction)); err != nil {
			a.setRunError(ctx, result, fmt.Errorf("seeding system instruction: %w", err))
			return a.finish(ctx, span, result, startMono), nil
		}
	}
	if err := a.memory.Append(protocol.NewUserMessage(input)); err != nil {
		a.setRunError(ctx, result, fmt.Errorf("appending user message: %w", err))
		return a.finish(ctx, span, result, startMono), nil
	}

	if a.checkInputGuardrails(ctx, runID, input, result) {
		return a.finish(ctx, span, result, startMono), nil
	}

	a.loop(ctx, runID, result, emit)
	return a.finish(ctx, span, result, startMono), nil
}

// loop runs iterations 1..MaxIterations, honoring cancellation and deadline
// between steps and recording every step including the terminal one.
func (a *Agent) loop(ctx context.Context, runID string, result *AgentRunResult, emit func(Event)) {
	for step := 1; step <= a.opts.MaxIterations; step++ {
		if stopped := a.checkContext(ctx, result); stopped {
			return
		}

		a.hooks.Dispatch(ctx, HookStepStart, map[string]interface{}{
			"agent_name": a.name,
			"run_id":     runID,
			"step":       step,
		})
		emitEvent(emit, Event{Type: EventStepStarted, Step: step})

		stepResult, err := a.runStep(ctx, runID, step, emit)
		if err != nil {
			// The failing iteration records no partial step.
			a.setRunError(ctx, result, err)
			return
		}

		result.Steps = append(result.Steps, *stepResult)
		result.Usage.Add(stepResult.Usage)
		for _, record := range stepResult.ToolCalls {
			result.ToolCallsTotal++
			result.ToolCallsByName[record.ToolName]++
		}

		emitEvent(emit, Event{Type: EventStepFinished, Step: step, StepResult: stepResult})
		a.hooks.Dispatch(ctx, HookStepEnd, map[string]interface{}{
			"agent_name":    a.name,
			"run_id":        runID,
			"step":          step,
			"finish_reason": stepResult.FinishReason,
		})

		if stepResult.FinishReason == "stop" {
			if a.checkOutputGuardrails(ctx, runID, stepResult.Thought, result) {
				return
			}
			result.Status = StatusCompleted
			result.Output = stepResult.Thought
			if a.opts.Verbose {
				slog.Info("final answer", "agent", a.name, "step", step)
			}
			return
		}
	}

	// Loop exhausted with the model still requesting tools.
	result.Status = StatusMaxIterations
	if n := len(result.Steps); n > 0 {
		result.Output = result.Steps[n-1].Thought
	}
	slog.Warn("hit max iterations", "agent", a.name, "max_iterations", a.opts.MaxIterations)
}

// checkContext maps context state to a terminal status. Returns true when
// the run must stop.
func (a *Agent) checkContext(ctx context.Context, result *AgentRunResult) bool {
	select {
	case <-ctx.Done():
	default:
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Status = StatusError
		result.Error = "deadline_exceeded"
	} else {
		result.Status = StatusCancelled
	}
	return true
}

// setRunError classifies an engine-level step failure. Cancellation and
// deadline that surfaced through the provider map to their own statuses.
func (a *Agent) setRunError(ctx context.Context, result *AgentRunResult, err error) {
	var trip *TripwireError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusError
		result.Error = "deadline_exceeded"
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		result.Status = StatusCancelled
	case errors.As(err, &trip):
		result.Status = StatusError
		result.Error = trip.Error()
		a.hooks.Dispatch(ctx, HookGuardrailTrip, map[string]interface{}{
			"agent_name": a.name,
			"guardrail":  trip.GuardrailName,
			"phase":      string(trip.Phase),
			"reason":     trip.Reason,
		})
	default:
		result.Status = StatusError
		result.Error = err.Error()
		slog.Error("run failed", "agent", a.name, "error", err)
	}
}

func (a *Agent) checkInputGuardrails(ctx context.Context, runID, input string, result *AgentRunResult) bool {
	gctx := &GuardrailContext{AgentName: a.name, RunID: runID, InputText: input}
	results, err := runGuardrails(ctx, a.guardrails, GuardrailInput, gctx)
	a.guardrailAudit = append(a.guardrailAudit, results...)
	if err != nil {
		a.setRunError(ctx, result, err)
		return true
	}
	return false
}

func (a *Agent) checkOutputGuardrails(ctx context.Context, runID, output string, result *AgentRunResult) bool {
	gctx := &GuardrailContext{AgentName: a.name, RunID: runID, OutputText: output}
	results, err := runGuardrails(ctx, a.guardrails, GuardrailOutput, gctx)
	a.guardrailAudit = append(a.guardrailAudit, results...)
	if err != nil {
		a.setRunError(ctx, result, err)
		return true
	}
	return false
}

// finish stamps timing, audit trail, metrics and the RUN_END hook.
func (a *Agent) finish(ctx context.Context, span trace.Span, result *AgentRunResult, startMono time.Time) *AgentRunResult {
	elapsed := time.Since(startMono)
	result.EndTime = result.StartTime.Add(elapsed)
	result.DurationSeconds = elapsed.Seconds()
	result.GuardrailResults = a.guardrailAudit

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.steps", result.StepsUsed()),
		attribute.Int("run.tool_calls", result.ToolCallsTotal),
	)
	if result.Status == StatusError {
		span.SetStatus(codes.Error, result.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	observability.GetGlobalMetrics().RecordAgentRun(a.name, string(result.Status), elapsed)

	a.hooks.Dispatch(ctx, HookRunEnd, map[string]interface{}{
		"agent_name":       a.name,
		"run_id":           result.RunID,
		"status":           string(result.Status),
		"steps_used":       result.StepsUsed(),
		"tool_calls_total": result.ToolCallsTotal,
		"tokens_used":      result.Usage.TotalTokens,
		"duration_seconds": result.DurationSeconds,
	})

	return result
}
