// Package tools implements the Tool Executor: the five workspace
// operations an Agent Runner invocation may call, plus the fixed JSON
// schema catalog describing them to an LLM provider.
package tools

import "github.com/owlduet-labs/adc-engine/pkg/llm"

const (
	ReadFile      = "read_file"
	WriteFile     = "write_file"
	EditFile      = "edit_file"
	RunBash       = "run_bash"
	ListDirectory = "list_directory"
)

// Catalog returns the fixed, minimal five-tool schema list every Agent
// Runner invocation offers. Never extended per-agent: a smaller, stable
// tool surface is easier for a model to use reliably than a large one.
//
// ADC-IMPLEMENTS: <tool-executor-feature-01>
func Catalog() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ReadFile,
			Description: "Read the contents of a file in the workspace.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute or workspace-relative file path.",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        WriteFile,
			Description: "Create or overwrite a file in the workspace, creating any missing parent directories.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute or workspace-relative file path.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full file content to write.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        EditFile,
			Description: "Replace the first occurrence of an exact substring in a file. The substring must match exactly once.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute or workspace-relative file path.",
					},
					"old": map[string]any{
						"type":        "string",
						"description": "Exact substring to find; must be unique in the file.",
					},
					"new": map[string]any{
						"type":        "string",
						"description": "Replacement text.",
					},
				},
				"required": []string{"path", "old", "new"},
			},
		},
		{
			Name:        RunBash,
			Description: "Run a shell command in the workspace directory and return stdout, stderr, and exit code.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "Shell command to execute.",
					},
					"timeout_seconds": map[string]any{
						"type":        "integer",
						"description": "Timeout in seconds. Defaults to 60.",
					},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        ListDirectory,
			Description: "List the entries of a directory in the workspace.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"directory": map[string]any{
						"type":        "string",
						"description": "Workspace-relative directory path.",
						"default":     ".",
					},
				},
			},
		},
	}
}
