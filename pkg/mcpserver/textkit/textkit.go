// Package textkit provides a small MCP server with text-utility tools. It
// is the bundled counterpart the MCP manager's integration tests spawn
// over stdio.
package textkit

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates the textkit MCP server.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"textkit",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("upper",
		mcp.WithDescription("Uppercase the given text"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to transform"),
		),
	), upperHandler)

	s.AddTool(mcp.NewTool("reverse",
		mcp.WithDescription("Reverse the given text"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to reverse"),
		),
	), reverseHandler)

	s.AddTool(mcp.NewTool("word_count",
		mcp.WithDescription("Count the words in the given text"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to count"),
		),
	), wordCountHandler)

	return s
}

func textArg(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	args := request.GetArguments()
	v, ok := args["text"]
	if !ok {
		return "", mcp.NewToolResultError("text argument is required")
	}
	text, ok := v.(string)
	if !ok {
		return "", mcp.NewToolResultError(fmt.Sprintf("text must be a string, got %T", v))
	}
	return text, nil
}

func upperHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, errResult := textArg(request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(strings.ToUpper(text)), nil
}

func reverseHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, errResult := textArg(request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(reverseString(text)), nil
}

func wordCountHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, errResult := textArg(request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d", len(strings.Fields(text)))), nil
}

// reverseString reverses by rune, not byte.
func reverseString(s string) string {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		out = utf8.AppendRune(out, r)
		s = s[:len(s)-size]
	}
	return string(out)
}
