package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

func TestUnboundedAppendAndSnapshot(t *testing.T) {
	m := NewUnbounded()
	require.NoError(t, m.Append(protocol.NewSystemMessage("sys")))
	require.NoError(t, m.Append(protocol.NewUserMessage("hello")))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, protocol.RoleSystem, snap[0].Role)
	assert.Equal(t, 2, m.Len())
	assert.Greater(t, m.ApproxTokens(), 0)

	// A held snapshot is not affected by later appends.
	require.NoError(t, m.Append(protocol.NewUserMessage("more")))
	assert.Len(t, snap, 2)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Snapshot())
}

func TestUnboundedNilAppend(t *testing.T) {
	m := NewUnbounded()
	require.Error(t, m.Append(nil))
}

func TestBufferWindowEvictsOldest(t *testing.T) {
	m := NewBufferWindow(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(protocol.NewUserMessage(fmt.Sprintf("msg-%d", i))))
	}

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "msg-2", snap[0].Text())
	assert.Equal(t, "msg-4", snap[2].Text())
}

func TestBufferWindowPinsSystemMessage(t *testing.T) {
	m := NewBufferWindow(2)
	require.NoError(t, m.Append(protocol.NewSystemMessage("instructions")))
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(protocol.NewUserMessage(fmt.Sprintf("msg-%d", i))))
	}

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, protocol.RoleSystem, snap[0].Role)
	assert.Equal(t, "instructions", snap[0].Text())
	assert.Equal(t, "msg-3", snap[1].Text())
	assert.Equal(t, "msg-4", snap[2].Text())
}

func TestBufferWindowLateSystemNotPinned(t *testing.T) {
	// Only a system message at position 0 is pinned.
	m := NewBufferWindow(2)
	require.NoError(t, m.Append(protocol.NewUserMessage("first")))
	require.NoError(t, m.Append(protocol.NewSystemMessage("late")))
	require.NoError(t, m.Append(protocol.NewUserMessage("second")))
	require.NoError(t, m.Append(protocol.NewUserMessage("third")))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "second", snap[0].Text())
}

func TestTokenWindowEvictsToBudget(t *testing.T) {
	m := NewTokenWindow(60, "")
	require.NoError(t, m.Append(protocol.NewSystemMessage("sys")))
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Append(protocol.NewUserMessage("some words that cost a handful of tokens each time")))
	}

	assert.LessOrEqual(t, m.ApproxTokens(), 60+20) // framing overhead tolerance
	snap := m.Snapshot()
	require.NotEmpty(t, snap)
	assert.Equal(t, protocol.RoleSystem, snap[0].Role)
	assert.Less(t, len(snap), 11)
}

func TestTokenWindowKeepsNewestMessage(t *testing.T) {
	m := NewTokenWindow(1, "")
	huge := protocol.NewUserMessage("this message alone blows through the tiny budget set above")
	require.NoError(t, m.Append(protocol.NewUserMessage("old")))
	require.NoError(t, m.Append(huge))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, huge.ID, snap[0].ID)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		strategy string
		want     interface{}
	}{
		{"unbounded", &Unbounded{}},
		{"buffer_window", &BufferWindow{}},
		{"token_window", &TokenWindow{}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			m, err := New(&config.MemoryConfig{Strategy: tt.strategy, WindowSize: 10, Budget: 100})
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}

	_, err := New(&config.MemoryConfig{Strategy: "bogus"})
	require.Error(t, err)
}
