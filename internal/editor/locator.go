package editor

import (
	"fmt"
	"strings"

	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
)

// Target selects exactly one declaration in a file. A bare name
// matches any kind; a kind qualifier ("fn add", "struct Config",
// "function:add") narrows the match.
type Target struct {
	Kind string // canonical kind, empty when unqualified
	Name string
	Raw  string
}

// ParseTarget splits a target string into an optional kind qualifier
// and a declaration name. Unrecognized qualifier words are treated as
// part of the name rather than rejected.
func ParseTarget(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, cmeerrors.New(cmeerrors.InvalidArgument, "edit target must not be empty", nil)
	}

	if i := strings.IndexByte(trimmed, ':'); i > 0 && i < len(trimmed)-1 {
		if kind := grammar.NormalizeKind(strings.TrimSpace(trimmed[:i])); kind != "" {
			return Target{Kind: kind, Name: strings.TrimSpace(trimmed[i+1:]), Raw: raw}, nil
		}
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 2 {
		if kind := grammar.NormalizeKind(fields[0]); kind != "" {
			return Target{Kind: kind, Name: fields[1], Raw: raw}, nil
		}
	}

	return Target{Name: trimmed, Raw: raw}, nil
}

// Locate resolves a target to exactly one declaration. Zero matches
// is a TARGET_NOT_FOUND error; more than one is AMBIGUOUS_TARGET and
// is never silently resolved to the first match.
func Locate(decls []grammar.Decl, target Target) (*grammar.Decl, error) {
	var matches []grammar.Decl
	for _, d := range decls {
		if d.Name == target.Name && kindMatches(target.Kind, d.Kind) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 1:
		m := matches[0]
		return &m, nil

	case 0:
		return nil, cmeerrors.New(cmeerrors.TargetNotFound,
			fmt.Sprintf("target not found in source: '%s'", target.Raw), nil).
			WithDetails(map[string]interface{}{
				"target":       target.Raw,
				"knownTargets": knownTargets(decls, 10),
			})

	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = FormatDecl(m)
		}
		return nil, cmeerrors.New(cmeerrors.AmbiguousTarget,
			fmt.Sprintf("target '%s' matches %d declarations", target.Raw, len(matches)), nil).
			WithDetails(map[string]interface{}{
				"target":     target.Raw,
				"candidates": candidates,
			})
	}
}

// kindMatches reports whether a qualifier accepts a declaration kind.
// "function" also accepts methods, and "type" accepts any type-like
// declaration, so the common qualifiers stay forgiving.
func kindMatches(filter, kind string) bool {
	if filter == "" || filter == kind {
		return true
	}
	switch filter {
	case grammar.KindFunction:
		return kind == grammar.KindMethod
	case grammar.KindType:
		return kind == grammar.KindStruct || kind == grammar.KindEnum ||
			kind == grammar.KindInterface || kind == grammar.KindClass
	}
	return false
}

// FormatDecl renders a declaration for error details.
func FormatDecl(d grammar.Decl) string {
	if d.Container != "" {
		return fmt.Sprintf("%s %s (in %s) at line %d", d.Kind, d.Name, d.Container, d.StartLine)
	}
	return fmt.Sprintf("%s %s at line %d", d.Kind, d.Name, d.StartLine)
}

// knownTargets lists up to limit declaration labels for discovery hints.
func knownTargets(decls []grammar.Decl, limit int) []string {
	out := make([]string, 0, limit)
	for _, d := range decls {
		if len(out) == limit {
			break
		}
		out = append(out, fmt.Sprintf("%s %s", d.Kind, d.Name))
	}
	return out
}
