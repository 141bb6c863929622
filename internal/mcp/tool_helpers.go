package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	cmeerrors "cme/internal/errors"
	"cme/internal/paths"
)

// stringParam extracts a required string parameter.
func stringParam(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok || v == "" {
		return "", cmeerrors.New(cmeerrors.InvalidArgument,
			fmt.Sprintf("missing or invalid '%s' parameter", name), nil)
	}
	return v, nil
}

// optStringParam extracts an optional string parameter.
func optStringParam(params map[string]interface{}, name string) string {
	v, _ := params[name].(string)
	return v
}

// intParam extracts an optional integer parameter. JSON numbers
// arrive as float64.
func intParam(params map[string]interface{}, name string, def int) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// resolvePath resolves a tool-supplied path against the workspace
// root and refuses paths that escape it.
func (s *MCPServer) resolvePath(file string) (string, error) {
	root, err := filepath.Abs(s.cfg.WorkspaceRoot)
	if err != nil {
		return "", cmeerrors.New(cmeerrors.FileIOError, "cannot resolve workspace root", err)
	}
	abs, err := paths.Resolve(root, file)
	if err != nil {
		return "", cmeerrors.New(cmeerrors.FileIOError,
			fmt.Sprintf("cannot resolve path: %s", file), err)
	}
	if !paths.IsWithinWorkspace(abs, root) {
		return "", cmeerrors.New(cmeerrors.InvalidArgument,
			fmt.Sprintf("path escapes the workspace: %s", file), nil)
	}
	return abs, nil
}

// patchKind picks the patcher responsible for a file.
func patchKind(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env") {
		return "env"
	}
	switch strings.TrimPrefix(filepath.Ext(base), ".") {
	case "json", "yaml", "yml", "toml":
		return "structured"
	case "md", "markdown":
		return "markdown"
	}
	return ""
}
