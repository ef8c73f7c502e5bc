package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arborio/agentcore/internal/logging"
)

const defaultConnectTimeout = 5 * time.Second

// Manager owns the lifecycle of every configured MCP server.
type Manager struct {
	mu        sync.RWMutex
	servers   map[string]*server
	sdkClient *sdkmcp.Client
}

type server struct {
	name    string
	config  *Config
	state   State
	err     string
	session *sdkmcp.ClientSession
	tools   []ToolDef
}

// NewManager creates a manager with no servers.
func NewManager() *Manager {
	return &Manager{
		servers: make(map[string]*server),
		sdkClient: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "agentcore",
			Version: "1.0.0",
		}, nil),
	}
}

// Connect registers name under config and, when enabled, spawns/dials the
// server, handshakes, and lists its tools. A disabled config is recorded as
// disconnected and skipped. Connecting a name that already exists replaces
// its previous registration after disconnecting it.
func (m *Manager) Connect(ctx context.Context, name string, config *Config) error {
	m.Disconnect(name)

	if config == nil || !config.Enabled {
		m.setServer(&server{name: name, config: config, state: StateDisconnected})
		return nil
	}

	srv := &server{name: name, config: config, state: StateConnecting}
	m.setServer(srv)

	session, tools, err := m.dial(ctx, config)
	if err != nil {
		m.mu.Lock()
		srv.state = StateError
		srv.err = err.Error()
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", name, err)
	}

	m.mu.Lock()
	srv.session = session
	srv.tools = tools
	srv.state = StateConnected
	srv.err = ""
	m.mu.Unlock()

	logging.Logger.Info().Str("server", name).Int("tools", len(tools)).Msg("mcp server connected")
	return nil
}

func (m *Manager) dial(ctx context.Context, config *Config) (*sdkmcp.ClientSession, []ToolDef, error) {
	timeout := defaultConnectTimeout
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var transport sdkmcp.Transport
	switch config.Type {
	case TransportRemote:
		if config.URL == "" {
			return nil, nil, fmt.Errorf("remote server needs a url")
		}
		transport = &sdkmcp.StreamableClientTransport{
			Endpoint:   config.URL,
			HTTPClient: &http.Client{Timeout: timeout},
		}
	case TransportLocal, "":
		if len(config.Command) == 0 {
			return nil, nil, fmt.Errorf("local server needs a command")
		}
		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &sdkmcp.CommandTransport{Command: cmd}
	default:
		return nil, nil, fmt.Errorf("unknown transport type %q", config.Type)
	}

	session, err := m.sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, nil, err
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		// A server without tools/list support still counts as connected.
		return session, nil, nil
	}
	tools := make([]ToolDef, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		tools = append(tools, toolDefFromSDK(t))
	}
	return session, tools, nil
}

func (m *Manager) setServer(srv *server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[srv.name] = srv
}

// Disconnect closes name's transport and clears its state. Callers that
// registered the server's tools must also drop the "<name>_" prefix from
// their registry (see ToolPrefix).
func (m *Manager) Disconnect(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	srv, ok := m.servers[name]
	if !ok {
		return
	}
	if srv.session != nil {
		srv.session.Close()
	}
	delete(m.servers, name)
}

// Reconnect is disconnect-then-connect under a new config, surfacing the
// connect step's error.
func (m *Manager) Reconnect(ctx context.Context, name string, config *Config) error {
	m.Disconnect(name)
	return m.Connect(ctx, name, config)
}

// Close disconnects every server.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, srv := range m.servers {
		if srv.session != nil {
			srv.session.Close()
		}
	}
	m.servers = make(map[string]*server)
	return nil
}

// ToolPrefix returns the registry prefix for name's tools.
func ToolPrefix(name string) string {
	return sanitizeName(name) + "_"
}

// Tools returns the prefixed tool definitions of every connected server.
func (m *Manager) Tools() []ToolDef {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ToolDef
	for name, srv := range m.servers {
		if srv.state != StateConnected {
			continue
		}
		for _, t := range srv.tools {
			all = append(all, ToolDef{
				Name:        ToolPrefix(name) + sanitizeName(t.Name),
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// CallTool executes a prefixed tool name on the owning server and returns
// the concatenated text content.
func (m *Manager) CallTool(ctx context.Context, prefixedName string, args json.RawMessage) (string, error) {
	srv, original := m.resolve(prefixedName)
	if srv == nil {
		return "", fmt.Errorf("no connected server owns tool %q", prefixedName)
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := srv.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      original,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			out.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool error: %s", out.String())
	}
	return out.String(), nil
}

// resolve maps a prefixed tool name back to its server and the server's own
// tool name.
func (m *Manager) resolve(prefixedName string) (*server, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, srv := range m.servers {
		if srv.state != StateConnected || srv.session == nil {
			continue
		}
		prefix := ToolPrefix(name)
		if !strings.HasPrefix(prefixedName, prefix) {
			continue
		}
		want := strings.TrimPrefix(prefixedName, prefix)
		for _, t := range srv.tools {
			if sanitizeName(t.Name) == want {
				return srv, t.Name
			}
		}
	}
	return nil, ""
}

// ListResources returns the resources of every connected server, with URIs
// rewritten to mcp://<server>/<uri>.
func (m *Manager) ListResources(ctx context.Context) []Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Resource
	for name, srv := range m.servers {
		if srv.state != StateConnected || srv.session == nil {
			continue
		}
		listed, err := srv.session.ListResources(ctx, nil)
		if err != nil {
			continue
		}
		for _, r := range listed.Resources {
			all = append(all, Resource{
				URI:         fmt.Sprintf("mcp://%s/%s", name, r.URI),
				Name:        r.Name,
				Description: r.Description,
				MimeType:    r.MIMEType,
			})
		}
	}
	return all
}

// Status reports every managed server, sorted by name.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for name, srv := range m.servers {
		out = append(out, ServerStatus{
			Name:      name,
			State:     srv.state,
			ToolCount: len(srv.tools),
			Error:     srv.err,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ServerCount returns how many servers are registered, in any state.
func (m *Manager) ServerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.servers)
}

// ConnectedCount returns how many servers are currently connected.
func (m *Manager) ConnectedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, srv := range m.servers {
		if srv.state == StateConnected {
			n++
		}
	}
	return n
}

// sanitizeName maps a server or tool name onto [A-Za-z0-9_].
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
