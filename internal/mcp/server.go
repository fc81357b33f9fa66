// Package mcp exposes the Tool Executor's five-tool catalog over the Model
// Context Protocol, so an external MCP-speaking client (an editor
// integration, a second agent harness) can drive the same workspace tools
// the Agent Runner uses internally.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/owlduet-labs/adc-engine/pkg/tools"
)

// ToolExecutor is the same narrow interface the Agent Runner depends on;
// declared again here rather than imported so this package does not pull
// in pkg/runner just to name a method signature.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, argsJSON string) (result string, isError bool)
}

// NewServer builds an MCP server exposing the same five tools as
// tools.Catalog(), forwarding every tools/call invocation to executor.
//
// ADC-IMPLEMENTS: <tool-executor-feature-03>
func NewServer(executor ToolExecutor) *server.MCPServer {
	s := server.NewMCPServer("adc-engine", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool(tools.ReadFile,
			mcp.WithDescription("Read the contents of a file in the workspace."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute or workspace-relative file path."),
			),
		),
		handler(executor, tools.ReadFile, func(r mcp.CallToolRequest) map[string]any {
			return map[string]any{"path": r.GetString("path", "")}
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.WriteFile,
			mcp.WithDescription("Create or overwrite a file in the workspace, creating any missing parent directories."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute or workspace-relative file path."),
			),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Full file content to write."),
			),
		),
		handler(executor, tools.WriteFile, func(r mcp.CallToolRequest) map[string]any {
			return map[string]any{"path": r.GetString("path", ""), "content": r.GetString("content", "")}
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.EditFile,
			mcp.WithDescription("Replace the first occurrence of an exact substring in a file. The substring must match exactly once."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute or workspace-relative file path."),
			),
			mcp.WithString("old",
				mcp.Required(),
				mcp.Description("Exact substring to find; must be unique in the file."),
			),
			mcp.WithString("new",
				mcp.Required(),
				mcp.Description("Replacement text."),
			),
		),
		handler(executor, tools.EditFile, func(r mcp.CallToolRequest) map[string]any {
			return map[string]any{
				"path": r.GetString("path", ""),
				"old":  r.GetString("old", ""),
				"new":  r.GetString("new", ""),
			}
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.RunBash,
			mcp.WithDescription("Run a shell command in the workspace directory and return stdout, stderr, and exit code."),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("Shell command to execute."),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Timeout in seconds. Defaults to 60."),
			),
		),
		handler(executor, tools.RunBash, func(r mcp.CallToolRequest) map[string]any {
			return map[string]any{
				"command":         r.GetString("command", ""),
				"timeout_seconds": r.GetInt("timeout_seconds", 60),
			}
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.ListDirectory,
			mcp.WithDescription("List the entries of a directory in the workspace."),
			mcp.WithString("directory",
				mcp.Description("Workspace-relative directory path. Defaults to the workspace root."),
			),
		),
		handler(executor, tools.ListDirectory, func(r mcp.CallToolRequest) map[string]any {
			return map[string]any{"directory": r.GetString("directory", ".")}
		}),
	)

	return s
}

// handler builds the mcp-go tool handler for name: extract typed fields out
// of request via extract, re-encode them as the JSON argument string
// executor.Execute expects, and translate its (result, isError) pair into
// the matching mcp.CallToolResult shape.
func handler(executor ToolExecutor, name string, extract func(mcp.CallToolRequest) map[string]any) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsJSON, err := json.Marshal(extract(request))
		if err != nil {
			return nil, fmt.Errorf("mcp: marshaling arguments for %s: %w", name, err)
		}

		result, isError := executor.Execute(ctx, name, string(argsJSON))
		if isError {
			return mcp.NewToolResultError(result), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

// ServeStdio runs the server over stdio, blocking until the transport
// closes. The MCP client (e.g. an editor extension) owns the subprocess
// lifecycle; this call returns when stdin closes.
func ServeStdio(executor ToolExecutor) error {
	return server.ServeStdio(NewServer(executor))
}
