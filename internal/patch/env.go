package patch

import (
	"fmt"
	"regexp"
	"strings"

	cmeerrors "cme/internal/errors"
)

// Env sets or deletes a KEY=value entry in a .env style file.
// Comments, blank lines, and entry order are preserved; a set for a
// missing key appends it.
func Env(path string, action Action, key, value string) (*Result, error) {
	if strings.TrimSpace(key) == "" {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "env key must not be empty", nil)
	}

	raw, mode, err := readPatchFile(path)
	if err != nil {
		return nil, err
	}

	keyRe, err := regexp.Compile(`^\s*` + regexp.QuoteMeta(key) + `\s*=`)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.InternalError, "failed to build key pattern", err)
	}

	lines := splitLines(string(raw))

	switch action {
	case ActionSet:
		newLine := key + "=" + value
		replaced := false
		for i, line := range lines {
			if keyRe.MatchString(line) {
				lines[i] = newLine
				replaced = true
				break
			}
		}
		if !replaced {
			lines = append(lines, newLine)
		}

	case ActionDelete:
		kept := lines[:0]
		removed := false
		for _, line := range lines {
			if keyRe.MatchString(line) {
				removed = true
				continue
			}
			kept = append(kept, line)
		}
		if !removed {
			return nil, cmeerrors.New(cmeerrors.TargetNotFound,
				fmt.Sprintf("key '%s' not found in %s", key, path), nil)
		}
		lines = kept

	default:
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, fmt.Sprintf("unknown action '%s'", action), nil)
	}

	result := strings.Join(lines, "\n") + "\n"
	if err := commitPatch(path, []byte(result), mode); err != nil {
		return nil, err
	}

	return &Result{Path: path, Format: "env", Action: string(action), Target: key}, nil
}
