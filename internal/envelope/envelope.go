// Package envelope provides a standardized response wrapper for all MCP tool
// responses. Every tool response carries the same envelope: payload, result
// confidence, warnings, a structured error, and suggested follow-up calls.
package envelope

import (
	stderrors "errors"

	cmeerrors "cme/internal/errors"
)

// ConfidenceTier represents the quality tier of results.
type ConfidenceTier string

const (
	// TierHigh indicates a grammar-validated result.
	TierHigh ConfidenceTier = "high"
	// TierMedium indicates a result that needed healing before it validated.
	TierMedium ConfidenceTier = "medium"
	// TierLow indicates the textual fallback path: no registered grammar,
	// validity checked by bracket balance and size sanity only.
	TierLow ConfidenceTier = "low"
)

// Confidence describes result quality.
type Confidence struct {
	Score   float64        `json:"score"`             // 0.0 - 1.0
	Tier    ConfidenceTier `json:"tier"`              // high, medium, low
	Reasons []string       `json:"reasons,omitempty"` // why this tier
}

// Meta holds response metadata.
type Meta struct {
	Confidence *Confidence `json:"confidence,omitempty"`
}

// SuggestedCall represents a recommended follow-up tool call.
type SuggestedCall struct {
	Tool   string                 `json:"tool"`             // tool name
	Params map[string]interface{} `json:"params,omitempty"` // pre-filled parameters
	Reason string                 `json:"reason,omitempty"` // why this is suggested
}

// Warning represents a non-fatal issue.
type Warning struct {
	Code    string `json:"code,omitempty"` // machine-readable code
	Message string `json:"message"`        // human-readable message
}

// ErrorInfo is the structured error payload of a failed tool call.
type ErrorInfo struct {
	Code           string                `json:"code"`
	Message        string                `json:"message"`
	Details        interface{}           `json:"details,omitempty"`
	SuggestedFixes []cmeerrors.FixAction `json:"suggestedFixes,omitempty"`
}

// Response is the standard envelope for all MCP tool responses.
type Response struct {
	SchemaVersion      string          `json:"schemaVersion"`
	Data               interface{}     `json:"data"`
	Meta               *Meta           `json:"meta,omitempty"`
	Warnings           []Warning       `json:"warnings,omitempty"`
	Error              *ErrorInfo      `json:"error,omitempty"`
	SuggestedNextCalls []SuggestedCall `json:"suggestedNextCalls,omitempty"`
}

// CurrentSchemaVersion is the current envelope schema version.
const CurrentSchemaVersion = "1.0"

// NewErrorInfo converts any error into the envelope error payload. CmeError
// values keep their stable code and fixes; everything else becomes
// INTERNAL_ERROR.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var ce *cmeerrors.CmeError
	if stderrors.As(err, &ce) {
		return &ErrorInfo{
			Code:           string(ce.Code),
			Message:        ce.Message,
			Details:        ce.Details,
			SuggestedFixes: ce.SuggestedFixes,
		}
	}

	return &ErrorInfo{
		Code:    string(cmeerrors.InternalError),
		Message: err.Error(),
	}
}
