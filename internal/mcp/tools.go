package mcp

import "cme/internal/envelope"

// Tool represents a cme tool exposed via MCP
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler is a function that handles a tool call and returns an envelope response.
type ToolHandler func(params map[string]interface{}) (*envelope.Response, error)

// GetToolDefinitions returns all tool definitions
func (s *MCPServer) GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "applyEdits",
			Description: "Apply structural edits (replace, insert, delete) to named declarations in a source file. The request is atomic: either every edit lands and the result parses, or the file is left byte-identical.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file": map[string]interface{}{
						"type":        "string",
						"description": "Path of the file to edit, relative to the workspace root",
					},
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Optional language override (go, python, rust, ...); inferred from the extension otherwise",
					},
					"edits": map[string]interface{}{
						"type":        "array",
						"description": "Edits applied in order against the same staged content",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"target": map[string]interface{}{
									"type":        "string",
									"description": "Declaration to act on, e.g. 'fn add', 'struct Config', or 'method User.Save'",
								},
								"action": map[string]interface{}{
									"type": "string",
									"enum": []string{"replace", "insert_before", "insert_after", "delete"},
								},
								"code": map[string]interface{}{
									"type":        "string",
									"description": "Source text for the edit; omitted for delete",
								},
							},
							"required": []string{"target", "action"},
						},
					},
				},
				"required": []string{"file", "edits"},
			},
		},
		{
			Name:        "applyPatch",
			Description: "Apply a unified diff across one or more workspace files. Context lines must match exactly; all files are staged and parse-checked before any is written.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"patch": map[string]interface{}{
						"type":        "string",
						"description": "Unified diff text (git or plain format); may create files but not delete them",
					},
				},
				"required": []string{"patch"},
			},
		},
		{
			Name:        "patchFile",
			Description: "Patch a non-code file, dispatching on its extension: dot-path set/delete for JSON/YAML/TOML, section replacement for markdown, KEY=value set/delete for .env files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file": map[string]interface{}{
						"type":        "string",
						"description": "Path of the file to patch, relative to the workspace root",
					},
					"action": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"set", "delete"},
						"description": "Required for structured and env targets",
					},
					"keyPath": map[string]interface{}{
						"type":        "string",
						"description": "Dot-path into a JSON/YAML/TOML document, e.g. 'server.tls.enabled'",
					},
					"value": map[string]interface{}{
						"description": "Value to set (any JSON value for structured targets, string for env)",
					},
					"key": map[string]interface{}{
						"type":        "string",
						"description": "Variable name for env targets",
					},
					"section": map[string]interface{}{
						"type":        "string",
						"description": "Heading text of the markdown section to replace",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "New body for the markdown section",
					},
					"headingLevel": map[string]interface{}{
						"type":        "number",
						"default":     2,
						"description": "Heading level of the markdown section (1-6)",
					},
				},
				"required": []string{"file"},
			},
		},
		{
			Name:        "runAsync",
			Description: "Run a shell command in the background and return a job id immediately. Output streams to a per-job log; poll with checkJob.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "Command line, executed via sh -c",
					},
					"cwd": map[string]interface{}{
						"type":        "string",
						"description": "Working directory for the command (defaults to the server's)",
					},
					"timeoutSecs": map[string]interface{}{
						"type":        "number",
						"description": "Kill the command after this many seconds (default 300)",
					},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "checkJob",
			Description: "Get the status of a background job plus the last lines of its log. Never blocks on the job.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type":        "string",
						"description": "Job id returned by runAsync",
					},
				},
				"required": []string{"jobId"},
			},
		},
		{
			Name:        "killJob",
			Description: "Request termination of a background job. Idempotent: killing a finished job reports its settled status.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type":        "string",
						"description": "Job id returned by runAsync",
					},
				},
				"required": []string{"jobId"},
			},
		},
		{
			Name:        "listJobs",
			Description: "List background jobs, newest first, with optional status filtering and paging.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"status": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "string",
							"enum": []string{"pending", "running", "succeeded", "failed", "killed", "timed_out"},
						},
						"description": "Only return jobs in these states",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"default":     20,
						"description": "Maximum number of jobs to return (max 100)",
					},
					"offset": map[string]interface{}{
						"type":        "number",
						"description": "Number of jobs to skip, for paging",
					},
				},
			},
		},
	}
}

// RegisterTools registers all tool handlers
func (s *MCPServer) RegisterTools() {
	s.tools["applyEdits"] = s.toolApplyEdits
	s.tools["applyPatch"] = s.toolApplyPatch
	s.tools["patchFile"] = s.toolPatchFile
	s.tools["runAsync"] = s.toolRunAsync
	s.tools["checkJob"] = s.toolCheckJob
	s.tools["killJob"] = s.toolKillJob
	s.tools["listJobs"] = s.toolListJobs
}
