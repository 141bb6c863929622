package patch

import (
	"fmt"
	"strings"

	cmeerrors "cme/internal/errors"
)

// Docs replaces the body of a named markdown section. The section is
// identified by heading level and text; its body runs to the next
// heading of the same or a higher level, or to the end of the file.
func Docs(path, section, content string, headingLevel int) (*Result, error) {
	raw, mode, err := readPatchFile(path)
	if err != nil {
		return nil, err
	}

	if headingLevel < 1 {
		headingLevel = 1
	} else if headingLevel > 6 {
		headingLevel = 6
	}
	heading := strings.Repeat("#", headingLevel) + " " + section

	text := string(raw)
	hadFinalNewline := strings.HasSuffix(text, "\n")
	lines := splitLines(text)

	startIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == strings.TrimSpace(heading) {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, cmeerrors.New(cmeerrors.TargetNotFound,
			fmt.Sprintf("section '%s' (level %d) not found in %s", section, headingLevel, path), nil)
	}

	endIdx := len(lines)
	for i := startIdx + 1; i < len(lines); i++ {
		if level := headingDepth(lines[i]); level > 0 && level <= headingLevel {
			endIdx = i
			break
		}
	}

	contentLines := splitLines(content)

	out := make([]string, 0, startIdx+len(contentLines)+(len(lines)-endIdx)+3)
	out = append(out, lines[:startIdx+1]...)
	if !strings.HasPrefix(content, "\n") {
		out = append(out, "")
	}
	out = append(out, contentLines...)
	if endIdx < len(lines) {
		out = append(out, "")
		out = append(out, lines[endIdx:]...)
	}

	result := strings.Join(out, "\n")
	if hadFinalNewline && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	if err := commitPatch(path, []byte(result), mode); err != nil {
		return nil, err
	}

	return &Result{
		Path:     path,
		Format:   "markdown",
		Action:   string(ActionSet),
		Target:   section,
		OldLines: endIdx - startIdx - 1,
		NewLines: len(contentLines),
	}, nil
}

// headingDepth returns the number of leading # characters of a
// markdown heading line, or 0 for a non-heading line.
func headingDepth(line string) int {
	if !strings.HasPrefix(line, "#") {
		return 0
	}
	return len(line) - len(strings.TrimLeft(line, "#"))
}

// splitLines splits on newlines without a phantom trailing element
// for content that ends in one.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
