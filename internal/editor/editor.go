// Package editor applies structural edits to source files. Each
// request stages the file in a buffer, resolves targets against the
// parse tree, splices the mutations in order, and commits atomically
// only when the final content passes the parse gate. A request either
// lands completely or leaves the file untouched.
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
	"cme/internal/healer"
	"cme/internal/logging"
	"cme/internal/paths"
)

// Action is the mutation applied at a resolved target.
type Action string

const (
	ActionReplace      Action = "replace"
	ActionInsertBefore Action = "insert_before"
	ActionInsertAfter  Action = "insert_after"
	ActionDelete       Action = "delete"
)

// Edit is a single requested mutation.
type Edit struct {
	Target string `json:"target"`
	Action Action `json:"action"`
	Code   string `json:"code,omitempty"`
}

// AppliedRange records where one edit landed: the byte span of the
// declaration it resolved to, in the working text at the moment the
// edit was applied. Later edits in the same request may shift earlier
// spans.
type AppliedRange struct {
	Target    string `json:"target"`
	Action    Action `json:"action"`
	StartByte int    `json:"startByte"`
	EndByte   int    `json:"endByte"`
}

// Result describes a committed (or no-op) edit request.
type Result struct {
	Path     string         `json:"path"`
	Language string         `json:"language,omitempty"`
	Applied  []AppliedRange `json:"applied"`
	Changed  bool           `json:"changed"`
	Healed   bool           `json:"healed"`
	Fallback bool           `json:"fallback"`
}

// Editor owns the mutation pipeline. Safe for concurrent use; edits
// to the same file are serialized.
type Editor struct {
	cfg    *config.Config
	logger *logging.Logger
	parser *grammar.Parser
	healer *healer.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds an editor from configuration. The parser is nil when
// tree-sitter support is not compiled in; edits then go through the
// textual fallback if enabled.
func New(cfg *config.Config, logger *logging.Logger) *Editor {
	return &Editor{
		cfg:    cfg,
		logger: logger,
		parser: grammar.NewParser(),
		healer: healer.NewClient(&cfg.Editor, logger),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Apply runs an edit sequence against one file. langName optionally
// overrides extension-based language detection. All edits are applied
// to an in-memory copy in request order; the file is only rewritten
// when every edit resolved and the result passed validation.
func (e *Editor) Apply(ctx context.Context, path, langName string, edits []Edit) (*Result, error) {
	if err := validateEdits(edits); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot resolve path: %s", path), err)
	}

	lock := e.pathLock(abs)
	lock.Lock()
	defer lock.Unlock()

	mode, err := guardWritable(abs, e.cfg.Editor.MaxFileSizeBytes)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot read file: %s", abs), err)
	}

	lang, known := grammar.Detect(abs, langName)
	astMode := known && e.parser != nil
	if !astMode && !e.cfg.Editor.FallbackEnabled {
		return nil, cmeerrors.New(cmeerrors.UnsupportedFormat,
			fmt.Sprintf("no grammar registered for %s and textual fallback is disabled", filepath.Base(abs)), nil)
	}

	var parser *grammar.Parser
	if astMode {
		parser = e.parser
	}
	buf, err := NewBuffer(ctx, abs, content, lang, parser)
	if err != nil {
		return nil, err
	}

	healed := false
	applied := make([]AppliedRange, 0, len(edits))
	for i, ed := range edits {
		var decls []grammar.Decl
		if astMode {
			decls = buf.Decls()
		} else {
			decls = FallbackDecls(buf.Working())
		}

		target, err := ParseTarget(ed.Target)
		if err != nil {
			return nil, err
		}
		decl, err := Locate(decls, target)
		if err != nil {
			return nil, err
		}
		applied = append(applied, AppliedRange{
			Target:    ed.Target,
			Action:    ed.Action,
			StartByte: decl.StartByte,
			EndByte:   decl.EndByte,
		})

		if err := applyOne(ctx, buf, ed, decl); err != nil {
			return nil, err
		}

		if astMode && buf.Tree().HasErrors() {
			if e.healer == nil || healed {
				return nil, parseRejection(buf, i)
			}
			healed = true
			e.logger.Warn("Candidate failed to parse, invoking healer", map[string]interface{}{
				"path":        abs,
				"edit":        i,
				"diagnostics": len(buf.Diags()),
			})
			fixed, err := e.healer.Heal(ctx, buf.Working(), buf.Diags())
			if err != nil {
				return nil, err
			}
			if err := buf.SetWorking(ctx, fixed); err != nil {
				return nil, err
			}
			if buf.Tree().HasErrors() {
				return nil, cmeerrors.New(cmeerrors.HealingFailed,
					"healer output still contains syntax errors, edit aborted", nil).
					WithDetails(map[string]interface{}{"diagnostics": diagMessages(buf.Diags())})
			}
		}
	}

	// Commit gate: nothing reaches disk unless the final content is
	// structurally sound.
	if astMode {
		if buf.Tree().HasErrors() {
			return nil, parseRejection(buf, len(edits)-1)
		}
	} else {
		if err := verifyBalance(buf.Original(), buf.Working(), lang); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Path:     abs,
		Language: string(lang),
		Applied:  applied,
		Changed:  buf.Modified(),
		Healed:   healed,
		Fallback: !astMode,
	}

	if !buf.Modified() {
		e.logger.Info("Edits produced identical content, skipping write", map[string]interface{}{"path": abs})
		return result, nil
	}

	if err := paths.WriteFileAtomic(abs, buf.Working(), mode); err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot write file: %s", abs), err)
	}

	e.logger.Info("Applied edits", map[string]interface{}{
		"path":     abs,
		"edits":    len(edits),
		"healed":   healed,
		"fallback": !astMode,
	})
	return result, nil
}

// applyOne splices a single edit into the buffer.
func applyOne(ctx context.Context, buf *Buffer, ed Edit, decl *grammar.Decl) error {
	switch ed.Action {
	case ActionReplace:
		return buf.Splice(ctx, decl.StartByte, decl.EndByte, []byte(ed.Code))
	case ActionDelete:
		end := decl.EndByte
		if working := buf.Working(); end < len(working) && working[end] == '\n' {
			end++
		}
		return buf.Splice(ctx, decl.StartByte, end, nil)
	case ActionInsertBefore:
		return buf.Splice(ctx, decl.StartByte, decl.StartByte, []byte(ed.Code+"\n\n"))
	case ActionInsertAfter:
		return buf.Splice(ctx, decl.EndByte, decl.EndByte, []byte("\n\n"+ed.Code))
	default:
		return cmeerrors.New(cmeerrors.InvalidArgument, fmt.Sprintf("unknown action '%s'", ed.Action), nil)
	}
}

// validateEdits rejects malformed requests before any file access.
// It never parses ed.Code on its own: a fragment can be invalid in
// isolation yet valid once spliced, so the whole-file re-parse after
// application is the only syntax authority.
func validateEdits(edits []Edit) error {
	if len(edits) == 0 {
		return cmeerrors.New(cmeerrors.InvalidArgument, "at least one edit is required", nil)
	}
	for i, ed := range edits {
		switch ed.Action {
		case ActionReplace, ActionInsertBefore, ActionInsertAfter:
			if strings.TrimSpace(ed.Code) == "" {
				return cmeerrors.New(cmeerrors.InvalidArgument,
					fmt.Sprintf("edit %d: action '%s' requires code", i, ed.Action), nil)
			}
		case ActionDelete:
			// Code is ignored for deletes.
		default:
			return cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("edit %d: unknown action '%s'", i, ed.Action), nil)
		}
		if strings.TrimSpace(ed.Target) == "" {
			return cmeerrors.New(cmeerrors.InvalidArgument,
				fmt.Sprintf("edit %d: target must not be empty", i), nil)
		}
	}
	return nil
}

// guardWritable checks that path is an editable regular file before
// any content is staged. Returns the current file mode for the
// eventual rewrite.
func guardWritable(path string, maxSize int) (os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("file does not exist: %s", path), err)
		}
		return 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot stat file: %s", path), err)
	}
	if info.IsDir() {
		return 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("path is a directory: %s", path), nil)
	}
	if maxSize > 0 && info.Size() > int64(maxSize) {
		return 0, cmeerrors.New(cmeerrors.FileIOError,
			fmt.Sprintf("file exceeds maximum editable size (%d bytes): %s", maxSize, path), nil).
			WithDetails(map[string]interface{}{"sizeBytes": info.Size(), "maxBytes": maxSize})
	}
	if info.Mode().Perm()&0200 == 0 {
		return 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("file is read-only: %s", path), nil)
	}

	// Probe for write access up front so a permission problem rejects
	// the request before any mutation work happens.
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return 0, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("file is not writable: %s", path), err)
	}
	f.Close()

	return info.Mode(), nil
}

// parseRejection builds the rejection for a candidate that no longer
// parses and cannot be healed.
func parseRejection(buf *Buffer, editIndex int) error {
	return cmeerrors.New(cmeerrors.ParseInvalidAfterEdit,
		fmt.Sprintf("edit %d leaves the file with syntax errors", editIndex), nil).
		WithDetails(map[string]interface{}{"diagnostics": diagMessages(buf.Diags())})
}

// verifyBalance is the commit gate for the textual fallback: the edit
// sequence must not change the file's net bracket balance.
func verifyBalance(original, working []byte, lang grammar.Language) error {
	before := bracketDeltas(original, lang)
	after := bracketDeltas(working, lang)
	if before != after {
		return cmeerrors.New(cmeerrors.ParseInvalidAfterEdit,
			"edit changes the file's bracket balance, aborted", nil).
			WithDetails(map[string]interface{}{
				"before": fmt.Sprintf("() %+d [] %+d {} %+d", before.Paren, before.Bracket, before.Brace),
				"after":  fmt.Sprintf("() %+d [] %+d {} %+d", after.Paren, after.Bracket, after.Brace),
			})
	}
	return nil
}

func diagMessages(diags []grammar.Diag) []string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		msgs = append(msgs, d.Message)
	}
	return msgs
}

func (e *Editor) pathLock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	m, ok := e.locks[path]
	if !ok {
		m = &sync.Mutex{}
		e.locks[path] = m
	}
	return m
}
