package agent

import (
	"context"
	"fmt"
)

// GuardrailType selects the phase a guardrail checks.
type GuardrailType string

const (
	GuardrailInput    GuardrailType = "input"
	GuardrailOutput   GuardrailType = "output"
	GuardrailToolCall GuardrailType = "tool_call"
)

// GuardrailContext carries the material under inspection. Only the fields
// relevant to the phase are populated.
type GuardrailContext struct {
	AgentName string
	RunID     string

	// Input phase.
	InputText string

	// Output phase.
	OutputText string

	// Tool-call phase.
	ToolName      string
	ToolArguments map[string]interface{}
}

// GuardrailResult is one guardrail's verdict. Tripwire true hard-stops the
// run.
type GuardrailResult struct {
	GuardrailName string `json:"guardrail_name"`
	Type          string `json:"type"`
	Tripwire      bool   `json:"tripwire"`
	Reason        string `json:"reason,omitempty"`
}

// Guardrail inspects one phase of the loop. Check returns the verdict; a
// non-nil error means the guardrail itself failed and is treated as a trip.
type Guardrail interface {
	Name() string
	Type() GuardrailType
	Check(ctx context.Context, gctx *GuardrailContext) (GuardrailResult, error)
}

// TripwireError reports a guardrail veto. The run terminates with
// status=error carrying the reason.
type TripwireError struct {
	GuardrailName string
	Phase         GuardrailType
	Reason        string
}

func (e *TripwireError) Error() string {
	return fmt.Sprintf("guardrail %s tripped (%s): %s", e.GuardrailName, e.Phase, e.Reason)
}

// runGuardrails checks every guardrail of the given phase in order. All
// verdicts are collected; the first tripwire aborts with a TripwireError.
func runGuardrails(ctx context.Context, guardrails []Guardrail, phase GuardrailType, gctx *GuardrailContext) ([]GuardrailResult, error) {
	var results []GuardrailResult
	for _, g := range guardrails {
		if g.Type() != phase {
			continue
		}

		result, err := g.Check(ctx, gctx)
		if err != nil {
			result = GuardrailResult{
				GuardrailName: g.Name(),
				Type:          string(phase),
				Tripwire:      true,
				Reason:        fmt.Sprintf("guardrail check failed: %v", err),
			}
		}
		results = append(results, result)

		if result.Tripwire {
			return results, &TripwireError{
				GuardrailName: g.Name(),
				Phase:         phase,
				Reason:        result.Reason,
			}
		}
	}
	return results, nil
}
