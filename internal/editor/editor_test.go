package editor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/logging"
)

func testEditor(t *testing.T, mutate func(*config.Config)) *Editor {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := logging.NewLogger(logging.Config{Output: io.Discard, Format: logging.HumanFormat, Level: logging.ErrorLevel})
	return New(cfg, logger)
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back %s: %v", path, err)
	}
	return string(data)
}

// cSource exercises the textual fallback: no grammar is registered
// for C, so edits go through keyword matching.
const cSource = `int add(int a, int b) {
    return a + b;
}

int mul(int a, int b) {
    return a * b;
}
`

func TestApplyValidation(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	tests := []struct {
		name  string
		edits []Edit
	}{
		{"no edits", nil},
		{"unknown action", []Edit{{Target: "add", Action: "rewrite", Code: "x"}}},
		{"replace without code", []Edit{{Target: "add", Action: ActionReplace}}},
		{"empty target", []Edit{{Target: "  ", Action: ActionDelete}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Apply(context.Background(), path, "", tt.edits)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if code := cmeerrors.CodeOf(err); code != cmeerrors.InvalidArgument {
				t.Errorf("code = %s, want %s", code, cmeerrors.InvalidArgument)
			}
		})
	}

	if readBack(t, path) != cSource {
		t.Error("rejected requests must not modify the file")
	}
}

func TestApplyMissingFile(t *testing.T) {
	e := testEditor(t, nil)
	path := filepath.Join(t.TempDir(), "absent.c")

	_, err := e.Apply(context.Background(), path, "", []Edit{{Target: "add", Action: ActionDelete}})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.FileIOError {
		t.Errorf("code = %s, want %s", code, cmeerrors.FileIOError)
	}
}

func TestApplyDirectory(t *testing.T) {
	e := testEditor(t, nil)

	_, err := e.Apply(context.Background(), t.TempDir(), "", []Edit{{Target: "add", Action: ActionDelete}})
	if err == nil {
		t.Fatal("expected error for directory target")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.FileIOError {
		t.Errorf("code = %s, want %s", code, cmeerrors.FileIOError)
	}
}

func TestApplyFileTooLarge(t *testing.T) {
	e := testEditor(t, func(cfg *config.Config) { cfg.Editor.MaxFileSizeBytes = 16 })
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{{Target: "add", Action: ActionDelete}})
	if err == nil {
		t.Fatal("expected error for oversized file")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.FileIOError {
		t.Errorf("code = %s, want %s", code, cmeerrors.FileIOError)
	}
}

func TestApplyReadOnlyFile(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)
	if err := os.Chmod(path, 0444); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := e.Apply(context.Background(), path, "", []Edit{{Target: "add", Action: ActionDelete}})
	if err == nil {
		t.Fatal("expected error for read-only file")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.FileIOError {
		t.Errorf("code = %s, want %s", code, cmeerrors.FileIOError)
	}
}

func TestApplyFallbackReplace(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	replacement := "int add(int a, int b) {\n    return b + a;\n}"
	res, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionReplace, Code: replacement},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !res.Fallback {
		t.Error("Fallback = false for a file without a grammar")
	}
	if !res.Changed || len(res.Applied) != 1 {
		t.Errorf("result = %+v, want changed with one edit applied", res)
	}
	if len(res.Applied) == 1 {
		r := res.Applied[0]
		if r.Target != "add" || r.Action != ActionReplace || r.StartByte >= r.EndByte {
			t.Errorf("Applied[0] = %+v, want the add span", r)
		}
	}

	got := readBack(t, path)
	if !strings.Contains(got, "return b + a;") {
		t.Errorf("file content = %q, want replacement body", got)
	}
	if !strings.Contains(got, "int mul") {
		t.Error("untouched declaration lost")
	}
}

func TestApplyFallbackUnbalancedRejected(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionReplace, Code: "int add(int a, int b) {\n    return b + a;"},
	})
	if err == nil {
		t.Fatal("expected rejection for unbalanced replacement")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.ParseInvalidAfterEdit {
		t.Errorf("code = %s, want %s", code, cmeerrors.ParseInvalidAfterEdit)
	}
	if readBack(t, path) != cSource {
		t.Error("rejected edit must leave the file byte-identical")
	}
}

func TestApplyFallbackDisabled(t *testing.T) {
	e := testEditor(t, func(cfg *config.Config) { cfg.Editor.FallbackEnabled = false })
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{{Target: "add", Action: ActionDelete}})
	if err == nil {
		t.Fatal("expected rejection with fallback disabled")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.UnsupportedFormat {
		t.Errorf("code = %s, want %s", code, cmeerrors.UnsupportedFormat)
	}
}

func TestApplyIdenticalContentSkipsWrite(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	current := "int add(int a, int b) {\n    return a + b;\n}"
	res, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionReplace, Code: current},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Changed {
		t.Error("Changed = true for a byte-identical result")
	}
	if readBack(t, path) != cSource {
		t.Error("file content drifted on a no-op edit")
	}
}

func TestApplyDelete(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	res, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "mul", Action: ActionDelete},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !res.Changed {
		t.Error("Changed = false after delete")
	}

	got := readBack(t, path)
	if strings.Contains(got, "mul") {
		t.Errorf("file content = %q, deleted declaration still present", got)
	}
	if !strings.Contains(got, "int add") {
		t.Error("remaining declaration lost")
	}
}

func TestApplyInsertAfter(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	res, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionInsertAfter, Code: "int sub(int a, int b) {\n    return a - b;\n}"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !res.Changed {
		t.Error("Changed = false after insert")
	}

	got := readBack(t, path)
	addIdx := strings.Index(got, "int add")
	subIdx := strings.Index(got, "int sub")
	mulIdx := strings.Index(got, "int mul")
	if subIdx < 0 || !(addIdx < subIdx && subIdx < mulIdx) {
		t.Errorf("file content = %q, want sub inserted between add and mul", got)
	}
}

func TestApplyInsertBefore(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionInsertBefore, Code: "int zero(void) {\n    return 0;\n}"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got := readBack(t, path)
	if !strings.HasPrefix(got, "int zero(void)") {
		t.Errorf("file content = %q, want inserted declaration first", got)
	}
}

func TestApplyAmbiguousTargetRejected(t *testing.T) {
	source := `int get(int a) {
    return a;
}

int get(long a) {
    return 1;
}
`
	e := testEditor(t, nil)
	path := writeTestFile(t, "overload.cc", source)

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "get", Action: ActionDelete},
	})
	if err == nil {
		t.Fatal("expected ambiguity rejection, first match must never win")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.AmbiguousTarget {
		t.Errorf("code = %s, want %s", code, cmeerrors.AmbiguousTarget)
	}
	if readBack(t, path) != source {
		t.Error("rejected edit must leave the file byte-identical")
	}
}

func TestApplyTargetNotFound(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "divide", Action: ActionDelete},
	})
	if err == nil {
		t.Fatal("expected not-found rejection")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.TargetNotFound {
		t.Errorf("code = %s, want %s", code, cmeerrors.TargetNotFound)
	}
	if readBack(t, path) != cSource {
		t.Error("rejected edit must leave the file byte-identical")
	}
}

func TestApplySequentialEditsSeeEarlierResults(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	res, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "add", Action: ActionInsertAfter, Code: "int twice(int x) {\n    return x + x;\n}"},
		{Target: "twice", Action: ActionReplace, Code: "int twice(int x) {\n    return 2 * x;\n}"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Errorf("Applied = %+v, want 2 ranges", res.Applied)
	}

	got := readBack(t, path)
	if !strings.Contains(got, "return 2 * x;") {
		t.Errorf("file content = %q, second edit must see the first edit's declaration", got)
	}
	if strings.Contains(got, "return x + x;") {
		t.Error("first edit's body should have been replaced by the second")
	}
}

func TestApplyFailedEditAbortsWholeRequest(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "mul", Action: ActionDelete},
		{Target: "nonexistent", Action: ActionDelete},
	})
	if err == nil {
		t.Fatal("expected rejection from the second edit")
	}
	if readBack(t, path) != cSource {
		t.Error("a failing edit must roll back the entire request")
	}
}

func TestApplyPreservesFileMode(t *testing.T) {
	e := testEditor(t, nil)
	path := writeTestFile(t, "calc.c", cSource)
	if err := os.Chmod(path, 0640); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := e.Apply(context.Background(), path, "", []Edit{
		{Target: "mul", Action: ActionDelete},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640 preserved across the rewrite", info.Mode().Perm())
	}
}
