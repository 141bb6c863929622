package healer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
	"cme/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func testClient(url string, timeoutMs int) *Client {
	return NewClient(&config.EditorConfig{
		HealerURL:       url,
		HealerTimeoutMs: timeoutMs,
		HealerModel:     "qwen2.5-coder",
	}, testLogger())
}

func TestNewClient_DisabledWithoutURL(t *testing.T) {
	c := NewClient(&config.EditorConfig{HealerURL: "", HealerTimeoutMs: 10000}, testLogger())
	if c != nil {
		t.Error("expected nil client when no URL is configured")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips language fence",
			raw:  "```rust\nfn foo() {}\n```\n",
			want: "fn foo() {}",
		},
		{
			name: "no fence passthrough",
			raw:  "fn foo() {}",
			want: "fn foo() {}",
		},
		{
			name: "strips unmarked fence",
			raw:  "```\nfn bar() { 42 }\n```",
			want: "fn bar() { 42 }",
		},
		{
			name: "indented fence stripped",
			raw:  "  ```\nfn baz() {}\n  ```",
			want: "fn baz() {}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.raw); got != tt.want {
				t.Errorf("Sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitize_MultipleBlocksJoined(t *testing.T) {
	// Models sometimes wrap each function in its own block.
	raw := "```rust\nfn a() {}\n```\n```rust\nfn b() {}\n```"
	got := Sanitize(raw)
	if !strings.Contains(got, "fn a() {}") {
		t.Error("must include fn a")
	}
	if !strings.Contains(got, "fn b() {}") {
		t.Error("must include fn b")
	}
	if strings.Contains(got, "```") {
		t.Error("must strip all fences")
	}
}

func TestSanitize_InlineBackticksPreserved(t *testing.T) {
	// A fence sequence inside a comment is not a block marker.
	raw := "fn doc() {\n    // See: ```example```\n}"
	got := Sanitize(raw)
	if !strings.Contains(got, "fn doc()") {
		t.Error("must keep the function")
	}
	if !strings.Contains(got, "// See:") {
		t.Error("must keep the comment line")
	}
}

func TestBuildPrompt(t *testing.T) {
	diags := []grammar.Diag{
		{Message: "missing ';' at line 3:10", Line: 3, Column: 10},
		{Message: "unexpected 'fn' at line 5:1", Line: 5, Column: 1},
	}

	prompt := buildPrompt([]byte("fn broken( {}"), diags)

	if !strings.Contains(prompt, "1. missing ';' at line 3:10") {
		t.Errorf("prompt missing first numbered error:\n%s", prompt)
	}
	if !strings.Contains(prompt, "2. unexpected 'fn' at line 5:1") {
		t.Errorf("prompt missing second numbered error:\n%s", prompt)
	}
	if !strings.Contains(prompt, "fn broken( {}") {
		t.Error("prompt must include the broken source")
	}
	if !strings.Contains(prompt, "Fix ONLY the syntax errors listed above") {
		t.Error("prompt must include the repair instruction")
	}
}

func TestBuildPrompt_NoDiagnostics(t *testing.T) {
	prompt := buildPrompt([]byte("x"), nil)
	if !strings.Contains(prompt, "could not pinpoint") {
		t.Errorf("expected pinpoint fallback text, got:\n%s", prompt)
	}
}

func TestHeal_Success(t *testing.T) {
	var captured chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "```rust\nfn ok() {}\n```\n"}},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2000)

	healed, err := c.Heal(context.Background(), []byte("fn ok( {}"), []grammar.Diag{{Message: "missing ')' at line 1:6"}})
	if err != nil {
		t.Fatalf("Heal failed: %v", err)
	}
	if string(healed) != "fn ok() {}" {
		t.Errorf("healed = %q, want %q", healed, "fn ok() {}")
	}

	if captured.Model != "qwen2.5-coder" {
		t.Errorf("request model = %q, want qwen2.5-coder", captured.Model)
	}
	if captured.Temperature != 0.1 {
		t.Errorf("request temperature = %v, want 0.1", captured.Temperature)
	}
	if captured.MaxTokens != 2000 {
		t.Errorf("request max_tokens = %d, want 2000", captured.MaxTokens)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", captured.Messages)
	}
}

func TestHeal_TimeoutIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50)

	start := time.Now()
	_, err := c.Heal(context.Background(), []byte("x"), nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.HealingUnavailable {
		t.Errorf("error code = %s, want %s", code, cmeerrors.HealingUnavailable)
	}
	// The bound is the configured timeout plus scheduling slack, never
	// the server's response time.
	if elapsed > 400*time.Millisecond {
		t.Errorf("Heal took %v, expected to abort near the 50ms timeout", elapsed)
	}
}

func TestHeal_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2000)

	_, err := c.Heal(context.Background(), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error on HTTP 500")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.HealingUnavailable {
		t.Errorf("error code = %s, want %s", code, cmeerrors.HealingUnavailable)
	}
}

func TestHeal_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := testClient(srv.URL, 200)

	_, err := c.Heal(context.Background(), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error on closed endpoint")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.HealingUnavailable {
		t.Errorf("error code = %s, want %s", code, cmeerrors.HealingUnavailable)
	}
}

func TestHeal_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2000)

	_, err := c.Heal(context.Background(), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error on empty choices")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.HealingFailed {
		t.Errorf("error code = %s, want %s", code, cmeerrors.HealingFailed)
	}
}

func TestHeal_FenceOnlyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "```\n```"}},
			},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2000)

	_, err := c.Heal(context.Background(), []byte("x"), nil)
	if err == nil {
		t.Fatal("expected error when sanitized output is empty")
	}
	if code := cmeerrors.CodeOf(err); code != cmeerrors.HealingFailed {
		t.Errorf("error code = %s, want %s", code, cmeerrors.HealingFailed)
	}
}
