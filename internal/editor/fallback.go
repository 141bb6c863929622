package editor

import (
	"regexp"
	"sort"

	"cme/internal/grammar"
)

// Textual fallback for files without a registered grammar: keyword
// patterns find declaration headers, brace or indent scanning finds
// their ends. Results carry lower confidence than the parsed path and
// the caller reports them as such.

// surrogateSpan bounds a declaration when neither braces nor
// indentation reveal its end.
const surrogateSpan = 500

type textPattern struct {
	kind string
	re   *regexp.Regexp
}

var textPatterns = []textPattern{
	// Rust / general
	{grammar.KindFunction, regexp.MustCompile(`(?m)^(?:pub\s+)?(?:async\s+)?fn\s+(\w+)`)},
	{grammar.KindStruct, regexp.MustCompile(`(?m)^(?:pub\s+)?struct\s+(\w+)`)},
	{grammar.KindEnum, regexp.MustCompile(`(?m)^(?:pub\s+)?enum\s+(\w+)`)},
	// TS / JS
	{grammar.KindFunction, regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)`)},
	{grammar.KindClass, regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?class\s+(\w+)`)},
	{grammar.KindInterface, regexp.MustCompile(`(?m)^(?:export\s+)?interface\s+(\w+)`)},
	// Python
	{grammar.KindFunction, regexp.MustCompile(`(?m)^def\s+(\w+)`)},
	{grammar.KindClass, regexp.MustCompile(`(?m)^class\s+(\w+)`)},
	// Go
	{grammar.KindFunction, regexp.MustCompile(`(?m)^func\s+(?:\([^)]+\)\s+)?(\w+)`)},
	{grammar.KindStruct, regexp.MustCompile(`(?m)^type\s+(\w+)\s+struct`)},
	// PHP
	{grammar.KindFunction, regexp.MustCompile(`(?m)^(?:public\s+|private\s+|protected\s+)?(?:static\s+)?function\s+(\w+)`)},
	{grammar.KindClass, regexp.MustCompile(`(?m)^(?:abstract\s+|final\s+)?class\s+(\w+)`)},
	// C# / Java / C++ (basic signature match)
	{grammar.KindFunction, regexp.MustCompile(`(?m)^(?:public\s+|private\s+|protected\s+|internal\s+)?(?:static\s+|async\s+|virtual\s+|override\s+)?(?:[\w<>,\[\]]+\s+)(\w+)\s*\(`)},
}

// FallbackDecls extracts declarations from source text by keyword
// heuristics. Only unindented declarations are found; nested matches
// would be too unreliable without a grammar.
func FallbackDecls(source []byte) []grammar.Decl {
	var decls []grammar.Decl

	for _, p := range textPatterns {
		for _, m := range p.re.FindAllSubmatchIndex(source, -1) {
			start := m[0]
			name := string(source[m[2]:m[3]])
			end := declEnd(source, start, m[1])
			decls = append(decls, grammar.Decl{
				Name:      name,
				Kind:      p.kind,
				StartByte: start,
				EndByte:   end,
				StartLine: lineAt(source, start),
				EndLine:   lineAt(source, end),
			})
		}
	}

	// Several patterns can hit the same header; keep the first match
	// per start offset so ambiguity detection sees each declaration once.
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].StartByte < decls[j].StartByte })
	out := decls[:0]
	for _, d := range decls {
		if len(out) > 0 && out[len(out)-1].StartByte == d.StartByte {
			continue
		}
		out = append(out, d)
	}
	return out
}

// declEnd scans forward from a declaration header for the end of its
// block: a balanced brace pair, an indented suite after a trailing
// colon, or a semicolon-terminated prototype. Headers may span lines;
// a declaration with no recognizable body ends at its first line.
func declEnd(source []byte, start, headerEnd int) int {
	limit := start + surrogateSpan
	if limit > len(source) {
		limit = len(source)
	}

	firstNewline := -1
	for i := headerEnd; i < limit; i++ {
		switch source[i] {
		case '{':
			if end, ok := braceSpan(source, i); ok {
				return end
			}
			return limit
		case ':':
			if lineRemainder(source, i+1) == "" {
				return indentSpan(source, start, i)
			}
		case ';':
			return lineEnd(source, i)
		case '\n':
			if firstNewline < 0 {
				firstNewline = i
			}
		}
	}
	if firstNewline >= 0 {
		return firstNewline
	}
	return limit
}

// braceSpan returns the offset just past the brace matching the one
// at open. Strings and comments are skipped so braces inside them do
// not count.
func braceSpan(source []byte, open int) (int, bool) {
	depth := 0
	inString := false
	inLineComment := false
	inBlockComment := false

	for i := open; i < len(source); i++ {
		c := source[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
			}
			continue
		}
		if inBlockComment {
			if c == '*' && i+1 < len(source) && source[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '/':
			if i+1 < len(source) {
				switch source[i+1] {
				case '/':
					inLineComment = true
					i++
				case '*':
					inBlockComment = true
					i++
				}
			}
		case '#':
			inLineComment = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// indentSpan returns the end of an indentation-delimited suite whose
// header starts at start. The suite runs until the first non-blank
// line indented no deeper than the header.
func indentSpan(source []byte, start, colon int) int {
	headerIndent := 0
	for i := start; i < len(source) && (source[i] == ' ' || source[i] == '\t'); i++ {
		headerIndent++
	}

	end := lineEnd(source, colon)
	i := end
	for i < len(source) {
		lineStart := i + 1
		if lineStart >= len(source) {
			break
		}
		next := lineEnd(source, lineStart)
		line := source[lineStart:next]

		if !isBlank(line) {
			indent := 0
			for indent < len(line) && (line[indent] == ' ' || line[indent] == '\t') {
				indent++
			}
			if indent <= headerIndent {
				return end
			}
			end = next
		}
		i = next
	}
	return end
}

func isBlank(line []byte) bool {
	for _, c := range line {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}

// lineEnd returns the offset of the newline terminating the line
// containing pos, or len(source).
func lineEnd(source []byte, pos int) int {
	for i := pos; i < len(source); i++ {
		if source[i] == '\n' {
			return i
		}
	}
	return len(source)
}

// lineRemainder returns the trimmed text between pos and the end of
// its line, ignoring trailing comments. An empty remainder after a
// colon marks an indentation-delimited suite.
func lineRemainder(source []byte, pos int) string {
	end := lineEnd(source, pos)
	out := ""
	for i := pos; i < end; i++ {
		c := source[i]
		if c == '#' {
			break
		}
		if c == ' ' || c == '\t' || c == '\r' {
			continue
		}
		out += string(c)
	}
	return out
}

// lineAt returns the 1-indexed line number containing pos.
func lineAt(source []byte, pos int) int {
	line := 1
	for i := 0; i < pos && i < len(source); i++ {
		if source[i] == '\n' {
			line++
		}
	}
	return line
}

// bracketBalance is the net open-minus-close count per bracket pair.
type bracketBalance struct {
	Paren   int
	Bracket int
	Brace   int
}

// bracketDeltas scans source outside strings and comments and counts
// net bracket depth. Single quotes delimit strings except for Rust,
// where they mark lifetimes.
func bracketDeltas(source []byte, lang grammar.Language) bracketBalance {
	var b bracketBalance
	trackSingle := lang != grammar.LangRust

	const (
		stNormal = iota
		stLineComment
		stBlockComment
		stDouble
		stSingle
		stBacktick
	)
	state := stNormal

	for i := 0; i < len(source); i++ {
		c := source[i]

		switch state {
		case stLineComment:
			if c == '\n' {
				state = stNormal
			}
		case stBlockComment:
			if c == '*' && i+1 < len(source) && source[i+1] == '/' {
				state = stNormal
				i++
			}
		case stDouble:
			if c == '\\' {
				i++
			} else if c == '"' {
				state = stNormal
			}
		case stSingle:
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stNormal
			}
		case stBacktick:
			if c == '`' {
				state = stNormal
			}
		default:
			switch c {
			case '/':
				if i+1 < len(source) {
					switch source[i+1] {
					case '/':
						state = stLineComment
						i++
					case '*':
						state = stBlockComment
						i++
					}
				}
			case '#':
				state = stLineComment
			case '"':
				state = stDouble
			case '\'':
				if trackSingle {
					state = stSingle
				}
			case '`':
				state = stBacktick
			case '(':
				b.Paren++
			case ')':
				b.Paren--
			case '[':
				b.Bracket++
			case ']':
				b.Bracket--
			case '{':
				b.Brace++
			case '}':
				b.Brace--
			}
		}
	}
	return b
}
