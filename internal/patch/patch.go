// Package patch mutates non-code files that back a codebase: dot-path
// edits on JSON/YAML/TOML configuration, markdown section rewrites,
// env-file keys, and unified diffs. Like the editor, every patcher
// stages the full result in memory and commits atomically or not at
// all.
package patch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	bstoml "github.com/BurntSushi/toml"
	ptoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	cmeerrors "cme/internal/errors"
	"cme/internal/paths"
)

// Action selects what a patch does to its target key.
type Action string

const (
	ActionSet    Action = "set"
	ActionDelete Action = "delete"
)

// Result describes a committed patch.
type Result struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Action   string `json:"action"`
	Target   string `json:"target"`
	OldLines int    `json:"oldLines,omitempty"`
	NewLines int    `json:"newLines,omitempty"`
}

// Structured patches a single key in a JSON, YAML, or TOML file using
// dot-path notation. Set creates missing intermediate objects; delete
// of a missing key is an error.
func Structured(path string, action Action, dotPath string, value interface{}) (*Result, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	var format string
	var err error
	switch ext {
	case "json":
		format = "json"
		err = patchJSON(path, action, dotPath, value)
	case "yaml", "yml":
		format = "yaml"
		err = patchYAML(path, action, dotPath, value)
	case "toml":
		format = "toml"
		err = patchTOML(path, action, dotPath, value)
	default:
		return nil, cmeerrors.New(cmeerrors.UnsupportedFormat,
			fmt.Sprintf("unsupported config file extension: .%s", ext), nil)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Path: path, Format: format, Action: string(action), Target: dotPath}, nil
}

func patchJSON(path string, action Action, dotPath string, value interface{}) error {
	raw, mode, err := readPatchFile(path)
	if err != nil {
		return err
	}

	var root map[string]interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return cmeerrors.New(cmeerrors.UnsupportedFormat, fmt.Sprintf("file is not valid JSON: %s", path), err)
	}

	if err := applyKey(root, action, dotPath, value); err != nil {
		return err
	}

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, "failed to serialize JSON", err)
	}
	out = append(out, '\n')
	return commitPatch(path, out, mode)
}

func patchYAML(path string, action Action, dotPath string, value interface{}) error {
	raw, mode, err := readPatchFile(path)
	if err != nil {
		return err
	}

	var root map[string]interface{}
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return cmeerrors.New(cmeerrors.UnsupportedFormat, fmt.Sprintf("file is not valid YAML: %s", path), err)
	}
	if root == nil {
		root = map[string]interface{}{}
	}

	if err := applyKey(root, action, dotPath, value); err != nil {
		return err
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, "failed to serialize YAML", err)
	}
	return commitPatch(path, out, mode)
}

func patchTOML(path string, action Action, dotPath string, value interface{}) error {
	raw, mode, err := readPatchFile(path)
	if err != nil {
		return err
	}

	var root map[string]interface{}
	if err := bstoml.Unmarshal(raw, &root); err != nil {
		return cmeerrors.New(cmeerrors.UnsupportedFormat, fmt.Sprintf("file is not valid TOML: %s", path), err)
	}
	if root == nil {
		root = map[string]interface{}{}
	}

	if err := applyKey(root, action, dotPath, value); err != nil {
		return err
	}

	out, err := ptoml.Marshal(root)
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, "failed to serialize TOML", err)
	}
	return commitPatch(path, out, mode)
}

// applyKey mutates root at dotPath.
func applyKey(root map[string]interface{}, action Action, dotPath string, value interface{}) error {
	segments, err := splitDotPath(dotPath)
	if err != nil {
		return err
	}
	parents, last := segments[:len(segments)-1], segments[len(segments)-1]

	switch action {
	case ActionSet:
		if value == nil {
			return cmeerrors.New(cmeerrors.InvalidArgument, "'value' is required for the set action", nil)
		}
		parent, err := navigate(root, parents, true)
		if err != nil {
			return err
		}
		parent[last] = value
		return nil

	case ActionDelete:
		parent, err := navigate(root, parents, false)
		if err != nil {
			return err
		}
		if _, ok := parent[last]; !ok {
			return cmeerrors.New(cmeerrors.TargetNotFound,
				fmt.Sprintf("key '%s' not found", dotPath), nil)
		}
		delete(parent, last)
		return nil

	default:
		return cmeerrors.New(cmeerrors.InvalidArgument, fmt.Sprintf("unknown action '%s'", action), nil)
	}
}

// navigate walks key segments down to the parent object of the final
// key. With create, missing intermediate objects are inserted.
func navigate(root map[string]interface{}, segments []string, create bool) (map[string]interface{}, error) {
	cur := root
	for _, seg := range segments {
		next, ok := cur[seg]
		if !ok {
			if !create {
				return nil, cmeerrors.New(cmeerrors.TargetNotFound,
					fmt.Sprintf("key '%s' not found", seg), nil)
			}
			m := map[string]interface{}{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("key '%s' is not an object", seg), nil)
		}
		cur = m
	}
	return cur, nil
}

func splitDotPath(dotPath string) ([]string, error) {
	trimmed := strings.TrimSpace(dotPath)
	if trimmed == "" {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "key path must not be empty", nil)
	}
	segments := strings.Split(trimmed, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("key path '%s' has an empty segment", dotPath), nil)
		}
	}
	return segments, nil
}

// readPatchFile loads a patch target and remembers its mode for the
// rewrite.
func readPatchFile(path string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("file does not exist: %s", path), err)
		}
		return nil, 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot stat file: %s", path), err)
	}
	if info.IsDir() {
		return nil, 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("path is a directory: %s", path), nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot read file: %s", path), err)
	}
	return raw, info.Mode(), nil
}

func commitPatch(path string, data []byte, mode os.FileMode) error {
	if err := paths.WriteFileAtomic(path, data, mode); err != nil {
		return cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot write file: %s", path), err)
	}
	return nil
}
