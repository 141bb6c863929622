// Package grammar provides tree-sitter backed parsing and declaration
// lookup for the edit engine. The registry maps file extensions and
// language names to compiled grammars; parsing is only available in
// CGO builds, callers check IsAvailable before relying on it.
package grammar

import (
	"path/filepath"
	"strings"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

// Declaration kinds reported by the parser and accepted as target
// qualifiers. Kinds are language-neutral: a Rust fn and a Python def
// are both "function".
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindStruct    = "struct"
	KindEnum      = "enum"
	KindImpl      = "impl"
	KindTrait     = "trait"
	KindMod       = "mod"
	KindClass     = "class"
	KindInterface = "interface"
	KindType      = "type"
)

// Decl is a named declaration found in a parsed file.
type Decl struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"` // enclosing class/impl/trait name for methods
	StartByte int    `json:"startByte"`
	EndByte   int    `json:"endByte"`
	StartLine int    `json:"startLine"` // 1-indexed
	EndLine   int    `json:"endLine"`   // 1-indexed
}

// Diag is a single syntax problem found in a parsed file.
type Diag struct {
	Message string `json:"message"`
	Line    int    `json:"line"` // 1-indexed
	Column  int    `json:"column"`
}

// FromExtension returns the Language for a file extension.
func FromExtension(ext string) (Language, bool) {
	switch ext {
	case ".go":
		return LangGo, true
	case ".js", ".mjs", ".cjs":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".jsx":
		return LangJavaScript, true // JSX uses JS parser
	case ".py", ".pyw":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// FromName returns the Language for a language name or common alias.
func FromName(name string) (Language, bool) {
	switch name {
	case "go", "golang":
		return LangGo, true
	case "javascript", "js", "jsx":
		return LangJavaScript, true
	case "typescript", "ts":
		return LangTypeScript, true
	case "tsx":
		return LangTSX, true
	case "python", "py":
		return LangPython, true
	case "rust", "rs":
		return LangRust, true
	case "java":
		return LangJava, true
	case "kotlin", "kt":
		return LangKotlin, true
	default:
		return "", false
	}
}

// Detect resolves the language for a file, preferring an explicit
// language name over the file extension.
func Detect(path, langName string) (Language, bool) {
	if langName != "" {
		return FromName(strings.ToLower(langName))
	}
	return FromExtension(strings.ToLower(filepath.Ext(path)))
}

// NormalizeKind maps a target qualifier keyword to a canonical
// declaration kind. Returns "" for words that are not kind keywords,
// which the locator treats as part of the declaration name.
func NormalizeKind(word string) string {
	switch word {
	case "fn", "func", "def", "function":
		return KindFunction
	case "method":
		return KindMethod
	case "struct":
		return KindStruct
	case "enum":
		return KindEnum
	case "impl":
		return KindImpl
	case "trait":
		return KindTrait
	case "mod", "module":
		return KindMod
	case "class":
		return KindClass
	case "interface":
		return KindInterface
	case "type":
		return KindType
	default:
		return ""
	}
}
