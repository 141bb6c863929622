package editor

import (
	"bytes"
	"context"

	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
)

// Buffer stages file content through an edit sequence. The working
// copy is re-parsed after every splice so later targets resolve
// against the tree the previous edit produced. Nothing touches disk
// until the editor commits.
type Buffer struct {
	path     string
	lang     grammar.Language
	parser   *grammar.Parser
	original []byte
	working  []byte
	tree     *grammar.Tree // nil when operating without a grammar
}

// NewBuffer snapshots content and parses it when a parser is supplied.
// A nil parser puts the buffer in textual mode.
func NewBuffer(ctx context.Context, path string, content []byte, lang grammar.Language, parser *grammar.Parser) (*Buffer, error) {
	b := &Buffer{
		path:     path,
		lang:     lang,
		parser:   parser,
		original: append([]byte(nil), content...),
		working:  append([]byte(nil), content...),
	}
	if err := b.reparse(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Splice replaces working[start:end) with replacement and re-parses.
func (b *Buffer) Splice(ctx context.Context, start, end int, replacement []byte) error {
	if start < 0 || end < start || end > len(b.working) {
		return cmeerrors.New(cmeerrors.InternalError, "splice range out of bounds", nil).
			WithDetails(map[string]interface{}{
				"start": start,
				"end":   end,
				"size":  len(b.working),
			})
	}

	next := make([]byte, 0, len(b.working)-(end-start)+len(replacement))
	next = append(next, b.working[:start]...)
	next = append(next, replacement...)
	next = append(next, b.working[end:]...)
	b.working = next

	return b.reparse(ctx)
}

// SetWorking replaces the entire working copy and re-parses. Used when
// the healer returns a repaired file.
func (b *Buffer) SetWorking(ctx context.Context, content []byte) error {
	b.working = append([]byte(nil), content...)
	return b.reparse(ctx)
}

func (b *Buffer) reparse(ctx context.Context) error {
	if b.parser == nil {
		b.tree = nil
		return nil
	}
	tree, err := b.parser.Parse(ctx, b.working, b.lang)
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, "failed to parse buffer", err)
	}
	b.tree = tree
	return nil
}

// Working returns the staged content.
func (b *Buffer) Working() []byte {
	return b.working
}

// Original returns the content snapshot taken at load time.
func (b *Buffer) Original() []byte {
	return b.original
}

// Modified reports whether the staged content differs from the snapshot.
func (b *Buffer) Modified() bool {
	return !bytes.Equal(b.working, b.original)
}

// Tree returns the syntax tree of the working copy, nil in textual mode.
func (b *Buffer) Tree() *grammar.Tree {
	return b.tree
}

// Decls returns the declarations of the working copy's tree.
func (b *Buffer) Decls() []grammar.Decl {
	if b.tree == nil {
		return nil
	}
	return b.tree.Declarations()
}

// Diags returns the syntax diagnostics of the working copy's tree.
func (b *Buffer) Diags() []grammar.Diag {
	if b.tree == nil {
		return nil
	}
	return b.tree.Diagnostics()
}
