// Package healer sends syntactically broken files to a local LLM for
// single-shot repair. At most one request is made per edit, bounded by
// a hard timeout; failures are reported to the caller and never
// escalate past the rejected edit.
package healer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/grammar"
	"cme/internal/logging"
)

const systemPrompt = "You are an expert compiler. Fix only the reported syntax errors. Output ONLY raw code -- no markdown, no backticks, no explanations."

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	url     string
	model   string
	timeout time.Duration
	hc      *http.Client
	logger  *logging.Logger
}

// NewClient builds a healer client from editor configuration.
// Returns nil when no healer URL is configured.
func NewClient(cfg *config.EditorConfig, logger *logging.Logger) *Client {
	if cfg.HealerURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.HealerTimeoutMs) * time.Millisecond
	return &Client{
		url:     cfg.HealerURL,
		model:   cfg.HealerModel,
		timeout: timeout,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Heal sends the broken source with its diagnostics and returns the
// repaired content. The round trip is bounded by the configured
// timeout on top of any caller deadline.
func (c *Client) Heal(ctx context.Context, source []byte, diags []grammar.Diag) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(source, diags)},
		},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.InternalError, "failed to encode healer request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.HealingUnavailable, "invalid healer URL", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.HealingUnavailable, "healer endpoint unreachable or timed out", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, cmeerrors.New(cmeerrors.HealingUnavailable,
			fmt.Sprintf("healer endpoint returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cmeerrors.New(cmeerrors.HealingFailed, "failed to decode healer response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, cmeerrors.New(cmeerrors.HealingFailed, "healer response contained no choices", nil)
	}

	healed := Sanitize(parsed.Choices[0].Message.Content)
	if strings.TrimSpace(healed) == "" {
		return nil, cmeerrors.New(cmeerrors.HealingFailed, "healer returned empty code", nil)
	}

	c.logger.Debug("Heal round trip complete", map[string]interface{}{
		"durationMs": time.Since(start).Milliseconds(),
		"bytes":      len(healed),
	})

	return []byte(healed), nil
}

// buildPrompt formats the diagnostics as a numbered list ahead of the
// broken source so a small local model knows exactly what to fix.
func buildPrompt(source []byte, diags []grammar.Diag) string {
	var errorContext string
	if len(diags) == 0 {
		errorContext = "(The parser detected syntax errors but could not pinpoint them.)"
	} else {
		var sb strings.Builder
		sb.WriteString("The parser reported the following syntax errors:\n")
		for i, d := range diags {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, d.Message)
		}
		errorContext = strings.TrimRight(sb.String(), "\n")
	}

	return fmt.Sprintf("%s\n\nFix ONLY the syntax errors listed above. Output ONLY raw code, no markdown, no backticks.\n\nBroken code:\n\n%s",
		errorContext, source)
}

// Sanitize strips residual markdown code fences from model output.
// Lines whose trimmed form starts with ``` are dropped; everything
// else is kept, including content outside fenced blocks.
func Sanitize(raw string) string {
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
