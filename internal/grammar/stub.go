//go:build !cgo

package grammar

import (
	"context"
	"errors"
)

// ErrNoCGO is returned when grammar parsing is unavailable due to missing CGO.
var ErrNoCGO = errors.New("grammar parsing requires CGO (tree-sitter)")

// Parser wraps tree-sitter parsing functionality.
// This is a stub implementation for non-CGO builds.
type Parser struct{}

// NewParser creates a new tree-sitter parser.
// Returns nil when CGO is disabled.
func NewParser() *Parser {
	return nil
}

// Parse parses source code and returns the syntax tree.
// Stub implementation returns an error.
func (p *Parser) Parse(ctx context.Context, source []byte, lang Language) (*Tree, error) {
	return nil, ErrNoCGO
}

// Tree is a parsed source file.
// This is a stub implementation for non-CGO builds.
type Tree struct{}

// HasErrors reports whether the tree contains any syntax errors.
// Stub implementation reports none.
func (t *Tree) HasErrors() bool {
	return false
}

// Diagnostics describes each syntax problem in the tree.
// Stub implementation returns none.
func (t *Tree) Diagnostics() []Diag {
	return nil
}

// Declarations collects every named declaration in the tree.
// Stub implementation returns none.
func (t *Tree) Declarations() []Decl {
	return nil
}

// IsAvailable returns whether grammar parsing is available.
// Returns false when CGO is disabled.
func IsAvailable() bool {
	return false
}
