package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ravikumarchavva/agent-framework/pkg/registry"
)

type staticSource struct {
	name  string
	tools []Tool
	err   error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Discover(ctx context.Context) error { return s.err }

func (s *staticSource) Tools() []Tool { return s.tools }

func (s *staticSource) Close() error { return nil }

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(&CalculatorTool{}))

	result, err := r.Execute(context.Background(), "calculator", map[string]interface{}{"expression": "6 * 7"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Text(), "42")
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()

	result, err := r.Execute(context.Background(), "missing", nil)
	var notFound *registry.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Name)
	assert.True(t, result.IsError)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(&CalculatorTool{}))

	err := r.RegisterTool(&CalculatorTool{})
	var dup *registry.DuplicateError
	assert.True(t, errors.As(err, &dup))
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(&CurrentTimeTool{}))
	require.NoError(t, r.RegisterTool(&CalculatorTool{}))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "calculator", defs[0].Name)
	assert.Equal(t, "get_current_time", defs[1].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestRegisterSourceSkipsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(&CalculatorTool{}))

	source := &staticSource{
		name:  "remote",
		tools: []Tool{&CalculatorTool{}, &CurrentTimeTool{}},
	}
	require.NoError(t, r.RegisterSource(context.Background(), source))

	// The conflicting calculator is skipped, the rest registers.
	assert.Equal(t, 2, r.Count())
}

func TestRegisterSourceDiscoverFailure(t *testing.T) {
	r := NewRegistry()
	source := &staticSource{name: "broken", err: errors.New("connection refused")}

	err := r.RegisterSource(context.Background(), source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 0, r.Count())
}
