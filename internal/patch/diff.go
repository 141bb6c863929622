package patch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
	"cme/internal/paths"
)

// DiffResult describes a committed unified diff.
type DiffResult struct {
	Files   []string `json:"files"`
	Hunks   int      `json:"hunks"`
	Created []string `json:"created,omitempty"`
}

type stagedFile struct {
	abs     string
	name    string
	content []byte
	mode    os.FileMode
	created bool
}

// ApplyDiff applies a unified diff to files under root. Every hunk's
// context must match the file on disk exactly, every touched file
// with a registered grammar must parse after application, and only
// then is anything written. File deletions are rejected; the engine
// mutates files, it does not remove them.
func ApplyDiff(ctx context.Context, parser *grammar.Parser, root string, patchText []byte) (*DiffResult, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(patchText)).ReadAllFiles()
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "invalid unified diff", err)
	}
	if len(fileDiffs) == 0 {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "diff contains no files", nil)
	}

	result := &DiffResult{}
	staged := make([]stagedFile, 0, len(fileDiffs))

	for _, fd := range fileDiffs {
		if fd.NewName == "/dev/null" {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("file deletion patches are not supported: %s", diffName(fd.OrigName)), nil)
		}

		name := diffName(fd.NewName)
		if name == "" {
			name = diffName(fd.OrigName)
		}
		if name == "" {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument, "diff entry has no file name", nil)
		}

		abs, err := resolveDiffPath(root, name)
		if err != nil {
			return nil, err
		}

		created := fd.OrigName == "/dev/null"
		var original []byte
		mode := os.FileMode(0644)
		if !created {
			var err error
			original, mode, err = readPatchFile(abs)
			if err != nil {
				return nil, err
			}
		}

		content, err := applyHunks(original, fd, created)
		if err != nil {
			return nil, err
		}

		staged = append(staged, stagedFile{abs: abs, name: name, content: content, mode: mode, created: created})
		result.Files = append(result.Files, name)
		result.Hunks += len(fd.Hunks)
		if created {
			result.Created = append(result.Created, name)
		}
	}

	// Parse gate before any write: a diff that breaks one file
	// commits nothing.
	for _, sf := range staged {
		if err := checkParses(ctx, parser, sf.abs, sf.content); err != nil {
			return nil, err
		}
	}

	for _, sf := range staged {
		if sf.created {
			if err := os.MkdirAll(filepath.Dir(sf.abs), 0755); err != nil {
				return nil, cmeerrors.New(cmeerrors.FileIOError,
					fmt.Sprintf("cannot create directory for %s", sf.name), err)
			}
		}
		if err := commitPatch(sf.abs, sf.content, sf.mode); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// applyHunks builds the patched content, verifying that every context
// and deletion line matches the original.
func applyHunks(original []byte, fd *diff.FileDiff, created bool) ([]byte, error) {
	if created {
		var out []string
		for _, hunk := range fd.Hunks {
			for _, line := range splitLines(string(hunk.Body)) {
				if strings.HasPrefix(line, "+") {
					out = append(out, line[1:])
				}
			}
		}
		return []byte(strings.Join(out, "\n") + "\n"), nil
	}

	origLines := strings.Split(string(original), "\n")
	var out []string
	cursor := 0

	for hi, hunk := range fd.Hunks {
		start := int(hunk.OrigStartLine) - 1
		if start < cursor || start > len(origLines) {
			return nil, hunkConflict(fd, hi, start+1)
		}
		out = append(out, origLines[cursor:start]...)
		cursor = start

		for _, line := range splitLines(string(hunk.Body)) {
			switch {
			case strings.HasPrefix(line, "+"):
				out = append(out, line[1:])
			case strings.HasPrefix(line, "-"):
				if cursor >= len(origLines) || origLines[cursor] != line[1:] {
					return nil, hunkConflict(fd, hi, cursor+1)
				}
				cursor++
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
			default:
				text := strings.TrimPrefix(line, " ")
				if cursor >= len(origLines) || origLines[cursor] != text {
					return nil, hunkConflict(fd, hi, cursor+1)
				}
				out = append(out, origLines[cursor])
				cursor++
			}
		}
	}

	out = append(out, origLines[cursor:]...)
	return []byte(strings.Join(out, "\n")), nil
}

func hunkConflict(fd *diff.FileDiff, hunkIdx, line int) error {
	return cmeerrors.New(cmeerrors.InvalidArgument,
		fmt.Sprintf("hunk %d does not apply to %s at line %d", hunkIdx+1, diffName(fd.NewName), line), nil)
}

// checkParses runs the patched content through the parse gate when a
// grammar is registered for the file.
func checkParses(ctx context.Context, parser *grammar.Parser, path string, content []byte) error {
	if parser == nil {
		return nil
	}
	lang, known := grammar.Detect(path, "")
	if !known {
		return nil
	}

	tree, err := parser.Parse(ctx, content, lang)
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, fmt.Sprintf("failed to parse %s", path), err)
	}
	if tree.HasErrors() {
		msgs := make([]string, 0, len(tree.Diagnostics()))
		for _, d := range tree.Diagnostics() {
			msgs = append(msgs, d.Message)
		}
		return cmeerrors.New(cmeerrors.ParseInvalidAfterEdit,
			fmt.Sprintf("patched file has syntax errors: %s", filepath.Base(path)), nil).
			WithDetails(map[string]interface{}{"path": path, "diagnostics": msgs})
	}
	return nil
}

// diffName strips the a/ b/ prefixes git puts on diff file names.
func diffName(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}

func resolveDiffPath(root, name string) (string, error) {
	if root == "" {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot resolve path: %s", name), err)
		}
		return abs, nil
	}

	abs, err := paths.Resolve(root, name)
	if err != nil {
		return "", cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot resolve path: %s", name), err)
	}
	if !paths.IsWithinWorkspace(abs, root) {
		return "", cmeerrors.New(cmeerrors.InvalidArgument,
			fmt.Sprintf("patch path escapes the workspace: %s", name), nil)
	}
	return abs, nil
}
