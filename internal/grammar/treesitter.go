//go:build cgo

package grammar

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// diagLimit caps the number of diagnostics collected from a single
// parse so downstream prompts stay bounded.
const diagLimit = 20

// Parser wraps tree-sitter for multi-language parsing.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a new tree-sitter parser.
func NewParser() *Parser {
	return &Parser{
		parser: sitter.NewParser(),
	}
}

// Parse parses source code and returns the syntax tree. A tree is
// returned even when the source has syntax errors; check HasErrors.
func (p *Parser) Parse(ctx context.Context, source []byte, lang Language) (*Tree, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &Tree{root: tree.RootNode(), lang: lang, source: source}, nil
}

// getLanguage returns the tree-sitter Language for a given language identifier.
func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangKotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Tree is a parsed source file.
type Tree struct {
	root   *sitter.Node
	lang   Language
	source []byte
}

// HasErrors reports whether the tree contains any syntax errors.
func (t *Tree) HasErrors() bool {
	return t.root.HasError()
}

// Diagnostics walks the tree and describes each syntax problem, at
// most diagLimit of them.
func (t *Tree) Diagnostics() []Diag {
	var diags []Diag

	var walk func(node *sitter.Node, depth int)
	walk = func(node *sitter.Node, depth int) {
		// Guard against pathological trees from heavily malformed input.
		if node == nil || depth > 1000 || len(diags) >= diagLimit {
			return
		}

		if node.IsMissing() {
			line, col := int(node.StartPoint().Row)+1, int(node.StartPoint().Column)+1
			diags = append(diags, Diag{
				Message: fmt.Sprintf("missing '%s' at line %d:%d", node.Type(), line, col),
				Line:    line,
				Column:  col,
			})
			return
		}
		if node.IsError() {
			line, col := int(node.StartPoint().Row)+1, int(node.StartPoint().Column)+1
			diags = append(diags, Diag{
				Message: fmt.Sprintf("unexpected '%s' at line %d:%d", errorSnippet(node, t.source), line, col),
				Line:    line,
				Column:  col,
			})
			return
		}
		if !node.HasError() {
			return
		}

		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)), depth+1)
		}
	}

	walk(t.root, 0)
	return diags
}

// errorSnippet returns a short single-line excerpt of an error node.
func errorSnippet(node *sitter.Node, source []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) {
		end = uint32(len(source))
	}
	text := strings.Join(strings.Fields(string(source[start:end])), " ")
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return text
}

// Declarations collects every named declaration in the tree. Methods
// carry the name of their enclosing class, impl or trait in Container.
func (t *Tree) Declarations() []Decl {
	declTypes := declNodeTypes(t.lang)
	if len(declTypes) == 0 {
		return nil
	}

	var decls []Decl

	var walk func(node *sitter.Node, container string)
	walk = func(node *sitter.Node, container string) {
		if node == nil {
			return
		}

		childContainer := container
		nodeType := node.Type()
		if contains(declTypes, nodeType) {
			if d := t.declFor(node, container); d != nil {
				decls = append(decls, *d)
				switch d.Kind {
				case KindClass, KindImpl, KindTrait, KindInterface, KindStruct, KindEnum:
					childContainer = d.Name
				case KindFunction, KindMethod:
					// Declarations nested in a function body are local,
					// not methods of the enclosing type.
					childContainer = ""
				}
			}
		}

		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)), childContainer)
		}
	}

	walk(t.root, "")
	return decls
}

// declFor builds a Decl from a declaration node, or nil for nodes
// without a resolvable name.
func (t *Tree) declFor(node *sitter.Node, container string) *Decl {
	name := declName(node, t.source, t.lang)
	if name == "" {
		return nil
	}

	kind := declKind(node, t.lang)
	if kind == KindFunction && container != "" {
		kind = KindMethod
	}
	if kind == KindMethod && container == "" && t.lang == LangGo {
		container = goReceiverType(node, t.source)
	}

	span := node
	// Include decorators when replacing a decorated Python definition.
	if parent := node.Parent(); parent != nil && parent.Type() == "decorated_definition" {
		span = parent
	}

	return &Decl{
		Name:      name,
		Kind:      kind,
		Container: container,
		StartByte: int(span.StartByte()),
		EndByte:   int(span.EndByte()),
		StartLine: int(span.StartPoint().Row) + 1,
		EndLine:   int(span.EndPoint().Row) + 1,
	}
}

// declNodeTypes returns the node types treated as editable declarations.
func declNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"function_declaration", "method_declaration", "type_declaration"}
	case LangJavaScript:
		return []string{"function_declaration", "generator_function_declaration", "class_declaration", "method_definition"}
	case LangTypeScript, LangTSX:
		return []string{"function_declaration", "generator_function_declaration", "class_declaration", "method_definition", "interface_declaration", "enum_declaration", "type_alias_declaration"}
	case LangPython:
		return []string{"function_definition", "class_definition"}
	case LangRust:
		return []string{"function_item", "struct_item", "enum_item", "impl_item", "trait_item", "mod_item"}
	case LangJava:
		return []string{"class_declaration", "interface_declaration", "enum_declaration", "method_declaration", "constructor_declaration"}
	case LangKotlin:
		return []string{"function_declaration", "class_declaration", "interface_declaration", "object_declaration"}
	default:
		return nil
	}
}

// declKind maps a declaration node to its canonical kind.
func declKind(node *sitter.Node, lang Language) string {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration", "function_definition", "function_item":
		return KindFunction
	case "method_declaration", "method_definition", "constructor_declaration":
		return KindMethod
	case "class_declaration", "class_definition", "object_declaration":
		return KindClass
	case "interface_declaration":
		return KindInterface
	case "enum_declaration", "enum_item":
		return KindEnum
	case "struct_item":
		return KindStruct
	case "impl_item":
		return KindImpl
	case "trait_item":
		return KindTrait
	case "mod_item":
		return KindMod
	case "type_alias_declaration":
		return KindType
	case "type_declaration":
		return goTypeKind(node)
	default:
		return KindType
	}
}

// goTypeKind refines a Go type_declaration into struct, interface or type.
func goTypeKind(node *sitter.Node) string {
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child == nil || child.Type() != "type_spec" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		if typeNode == nil {
			break
		}
		switch typeNode.Type() {
		case "struct_type":
			return KindStruct
		case "interface_type":
			return KindInterface
		}
		break
	}
	return KindType
}

// declName extracts the declaration name from a node.
func declName(node *sitter.Node, source []byte, lang Language) string {
	var nameNode *sitter.Node

	switch lang {
	case LangGo:
		if node.Type() == "type_declaration" {
			// type_declaration has a type_spec child which has the name
			for i := uint32(0); i < node.ChildCount(); i++ {
				child := node.Child(int(i))
				if child != nil && child.Type() == "type_spec" {
					nameNode = child.ChildByFieldName("name")
					break
				}
			}
		} else {
			nameNode = node.ChildByFieldName("name")
			if nameNode == nil {
				for i := uint32(0); i < node.ChildCount(); i++ {
					child := node.Child(int(i))
					if child != nil && child.Type() == "identifier" {
						nameNode = child
						break
					}
				}
			}
		}

	case LangRust:
		nameNode = node.ChildByFieldName("name")
		// impl blocks carry the type being implemented instead of a name.
		if nameNode == nil && node.Type() == "impl_item" {
			for i := uint32(0); i < node.ChildCount(); i++ {
				child := node.Child(int(i))
				if child != nil && child.Type() == "type_identifier" {
					nameNode = child
					break
				}
			}
		}

	case LangKotlin:
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "simple_identifier" {
				nameNode = child
				break
			}
		}

	default:
		nameNode = node.ChildByFieldName("name")
		if nameNode == nil {
			for i := uint32(0); i < node.ChildCount(); i++ {
				child := node.Child(int(i))
				if child != nil && (child.Type() == "identifier" || child.Type() == "type_identifier") {
					nameNode = child
					break
				}
			}
		}
	}

	if nameNode != nil {
		return string(source[nameNode.StartByte():nameNode.EndByte()])
	}
	return ""
}

// goReceiverType extracts the receiver type name of a Go method.
func goReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}

	var name string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || name != "" {
			return
		}
		if n.Type() == "type_identifier" {
			name = string(source[n.StartByte():n.EndByte()])
			return
		}
		for i := uint32(0); i < n.ChildCount(); i++ {
			walk(n.Child(int(i)))
		}
	}
	walk(recv)
	return name
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// IsAvailable returns whether grammar parsing is available.
func IsAvailable() bool {
	return true
}
