package agent

import (
	"time"

	"github.com/Ravikumarchavva/agent-framework/pkg/llms"
)

const (
	// DefaultSystemInstruction seeds memory when no instruction is configured.
	DefaultSystemInstruction = "You are a helpful AI assistant. Use the provided tools to solve the user's request. Think step-by-step."

	DefaultMaxIterations  = 10
	DefaultPerToolTimeout = 30 * time.Second
)

// Options tunes one agent. The zero value is not usable; use defaults via
// New.
type Options struct {
	// MaxIterations bounds the Think-Act-Observe loop.
	MaxIterations int

	// ParallelToolCalls fans out the Act phase. Results are collated back
	// into model-emitted order either way.
	ParallelToolCalls bool

	// ToolChoice is auto, required, none or a specific tool name.
	ToolChoice string

	// PerToolTimeout is the wall-clock budget for one tool call.
	PerToolTimeout time.Duration

	// OverallTimeout bounds the whole run. Zero means no deadline.
	OverallTimeout time.Duration

	Verbose bool
}

// Option mutates agent construction.
type Option func(*Agent)

func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.opts.MaxIterations = n
		}
	}
}

func WithParallelToolCalls(enabled bool) Option {
	return func(a *Agent) { a.opts.ParallelToolCalls = enabled }
}

func WithToolChoice(choice string) Option {
	return func(a *Agent) {
		if choice != "" {
			a.opts.ToolChoice = choice
		}
	}
}

func WithPerToolTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.opts.PerToolTimeout = d
		}
	}
}

func WithOverallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.opts.OverallTimeout = d
		}
	}
}

func WithVerbose(enabled bool) Option {
	return func(a *Agent) { a.opts.Verbose = enabled }
}

// WithSystemInstruction overrides the default system prompt.
func WithSystemInstruction(instruction string) Option {
	return func(a *Agent) { a.instruction = instruction }
}

// WithHooks attaches a hook manager.
func WithHooks(hooks *HookManager) Option {
	return func(a *Agent) {
		if hooks != nil {
			a.hooks = hooks
		}
	}
}

// WithGuardrails appends guardrails of any phase.
func WithGuardrails(guardrails ...Guardrail) Option {
	return func(a *Agent) { a.guardrails = append(a.guardrails, guardrails...) }
}

func defaultOptions() Options {
	return Options{
		MaxIterations:  DefaultMaxIterations,
		ToolChoice:     llms.ToolChoiceAuto,
		PerToolTimeout: DefaultPerToolTimeout,
	}
}
