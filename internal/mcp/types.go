// Package mcp manages external Model-Context-Protocol servers as tool
// providers: discovery of candidates in a servers directory, spawn/connect
// over stdio or streamable HTTP via the official Go SDK, conversion of
// advertised tools into registry entries named "<server>_<tool>", and
// disconnect/reconnect lifecycle.
package mcp

import (
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportType selects how a server is reached.
type TransportType string

const (
	// TransportLocal spawns a child process speaking MCP over stdio.
	TransportLocal TransportType = "local"
	// TransportRemote connects to a streamable-HTTP/SSE endpoint.
	TransportRemote TransportType = "remote"
)

// Config is the effective configuration for one server, after merging the
// discovery default, the server directory's own config file, and the
// caller-supplied explicit entry (explicit wins).
type Config struct {
	Enabled     bool              `json:"enabled"`
	Type        TransportType     `json:"type"`
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // milliseconds
}

// State is a server's position in the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ToolDef is one tool advertised by a server, before prefixing.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func toolDefFromSDK(t *sdkmcp.Tool) ToolDef {
	var schema json.RawMessage
	if t.InputSchema != nil {
		schema, _ = json.Marshal(t.InputSchema)
	}
	return ToolDef{Name: t.Name, Description: t.Description, InputSchema: schema}
}

// Resource is one resource advertised by a server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ServerStatus is the externally visible state of one managed server.
type ServerStatus struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}
