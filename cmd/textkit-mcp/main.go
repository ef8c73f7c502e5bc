// Command textkit-mcp serves the textkit MCP server over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/arborio/agentcore/pkg/mcpserver/textkit"
)

func main() {
	if err := server.ServeStdio(textkit.NewServer()); err != nil {
		fmt.Fprintf(os.Stderr, "textkit-mcp: %v\n", err)
		os.Exit(1)
	}
}
