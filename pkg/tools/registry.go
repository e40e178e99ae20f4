package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ravikumarchavva/agent-framework/pkg/llms"
	"github.com/Ravikumarchavva/agent-framework/pkg/observability"
	"github.com/Ravikumarchavva/agent-framework/pkg/registry"
)

// Registry holds the tools visible to an agent, keyed by name.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// RegisterTool adds a tool under its own name.
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(t.Info().Name, t)
}

// RegisterSource discovers a source and adds every tool it exposes. Name
// conflicts with already registered tools are skipped with a warning rather
// than failing the whole source.
func (r *Registry) RegisterSource(ctx context.Context, source ToolSource) error {
	if err := source.Discover(ctx); err != nil {
		return fmt.Errorf("discovering tools from source %s: %w", source.Name(), err)
	}

	for _, t := range source.Tools() {
		name := t.Info().Name
		if _, exists := r.Get(name); exists {
			slog.Warn("tool name conflict, skipping", "tool", name, "source", source.Name())
			continue
		}
		if err := r.Register(name, t); err != nil {
			return fmt.Errorf("registering tool %s from source %s: %w", name, source.Name(), err)
		}
	}
	return nil
}

// ListTools returns the info of every registered tool in name order.
func (r *Registry) ListTools() []ToolInfo {
	names := r.Names()
	infos := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			infos = append(infos, t.Info())
		}
	}
	return infos
}

// Definitions renders the registry as tool definitions for a model request,
// in name order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	infos := r.ListTools()
	defs := make([]llms.ToolDefinition, 0, len(infos))
	for _, info := range infos {
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.InputSchema,
		})
	}
	return defs
}

// Execute runs the named tool with tracing and metrics. An unknown tool name
// returns a registry.NotFoundError; execution outcomes are reported through
// the ToolResult.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	tracer := observability.GetTracer("agent-framework.tools")
	ctx, span := tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	defer span.End()

	t, ok := r.Get(name)
	if !ok {
		err := &registry.NotFoundError{Name: name}
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GetGlobalMetrics().RecordToolExecution(name, time.Since(start), true)
		return NewErrorResult(err.Error()), err
	}

	result, execErr := t.Execute(ctx, args)
	duration := time.Since(start)

	switch {
	case execErr != nil:
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
	case result.IsError:
		span.SetStatus(codes.Error, result.Text())
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Bool("tool.is_error", execErr != nil || result.IsError),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)
	observability.GetGlobalMetrics().RecordToolExecution(name, duration, execErr != nil || result.IsError)

	return result, execErr
}
