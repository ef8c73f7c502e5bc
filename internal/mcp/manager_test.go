package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborio/agentcore/internal/tool"
)

func TestConnectDisabledServerStaysDisconnected(t *testing.T) {
	m := NewManager()

	err := m.Connect(context.Background(), "off", &Config{Enabled: false})
	require.NoError(t, err)

	status := m.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StateDisconnected, status[0].State)
	assert.Equal(t, 1, m.ServerCount())
	assert.Equal(t, 0, m.ConnectedCount())
}

func TestConnectFailureRecordsErrorState(t *testing.T) {
	m := NewManager()

	err := m.Connect(context.Background(), "broken", &Config{
		Enabled: true,
		Type:    TransportLocal,
		Command: []string{"/nonexistent-binary-for-test"},
		Timeout: 200,
	})
	require.Error(t, err)

	status := m.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StateError, status[0].State)
	assert.NotEmpty(t, status[0].Error)
	assert.Equal(t, 0, m.ConnectedCount())
}

func TestConnectRejectsBadConfigs(t *testing.T) {
	m := NewManager()

	err := m.Connect(context.Background(), "no-cmd", &Config{Enabled: true, Type: TransportLocal})
	assert.Error(t, err, "local without command")

	err = m.Connect(context.Background(), "no-url", &Config{Enabled: true, Type: TransportRemote})
	assert.Error(t, err, "remote without url")

	err = m.Connect(context.Background(), "weird", &Config{Enabled: true, Type: "carrier-pigeon"})
	assert.Error(t, err, "unknown transport")
}

func TestDisconnectClearsState(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Connect(context.Background(), "off", &Config{Enabled: false}))

	m.Disconnect("off")
	assert.Equal(t, 0, m.ServerCount())

	// disconnecting twice is a no-op
	m.Disconnect("off")
}

func TestReconnectSurfacesSecondError(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Connect(context.Background(), "srv", &Config{Enabled: false}))

	err := m.Reconnect(context.Background(), "srv", &Config{
		Enabled: true,
		Type:    TransportLocal,
		Command: []string{"/nonexistent-binary-for-test"},
		Timeout: 200,
	})
	assert.Error(t, err)
}

func TestCloseDropsEverything(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Connect(context.Background(), "a", &Config{Enabled: false}))
	require.NoError(t, m.Connect(context.Background(), "b", &Config{Enabled: false}))

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.ServerCount())
}

func TestToolPrefixSanitizes(t *testing.T) {
	assert.Equal(t, "my_server_", ToolPrefix("my server"))
	assert.Equal(t, "textkit_", ToolPrefix("textkit"))
}

func TestCallToolUnknownServer(t *testing.T) {
	m := NewManager()

	_, err := m.CallTool(context.Background(), "ghost_echo", nil)
	assert.Error(t, err)
}

func TestDeregisterServerDropsPrefixedTools(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(tool.New("textkit_upper", "", nil, nil))
	reg.Register(tool.New("textkit_reverse", "", nil, nil))
	reg.Register(tool.New("echo", "", nil, nil))

	removed := DeregisterServer("textkit", reg)
	assert.Equal(t, 2, removed)

	_, ok := reg.Get("echo")
	assert.True(t, ok)
	_, ok = reg.Get("textkit_upper")
	assert.False(t, ok)
}
