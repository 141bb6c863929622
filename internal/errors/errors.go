package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TargetNotFound indicates a locator matched no node in the file
	TargetNotFound ErrorCode = "TARGET_NOT_FOUND"
	// AmbiguousTarget indicates a locator matched more than one node
	AmbiguousTarget ErrorCode = "AMBIGUOUS_TARGET"
	// ParseInvalidAfterEdit indicates the edited text no longer parses
	ParseInvalidAfterEdit ErrorCode = "PARSE_INVALID_AFTER_EDIT"
	// HealingUnavailable indicates the repair endpoint timed out or was unreachable
	HealingUnavailable ErrorCode = "HEALING_UNAVAILABLE"
	// HealingFailed indicates the repair endpoint answered but the result still fails to parse
	HealingFailed ErrorCode = "HEALING_FAILED"
	// FileIOError indicates a read, write, or rename failure
	FileIOError ErrorCode = "FILE_IO_ERROR"
	// JobSpawnError indicates a job could not be accepted or its process could not start
	JobSpawnError ErrorCode = "JOB_SPAWN_ERROR"
	// JobNotFound indicates no job record exists for the given id
	JobNotFound ErrorCode = "JOB_NOT_FOUND"
	// InvalidArgument indicates a malformed request parameter
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// UnsupportedFormat indicates a patch target with an unrecognized file format
	UnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// Rephrase suggests restating the request with different parameters
	Rephrase FixActionType = "rephrase"
	// CheckConfig suggests inspecting the configuration file
	CheckConfig FixActionType = "check-config"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
}

// CmeError represents a cme error with code, message, and suggestions
type CmeError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new CmeError with the fixes registered for its code.
func New(code ErrorCode, message string, cause error) *CmeError {
	return &CmeError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *CmeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CmeError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CmeError) WithDetails(details interface{}) *CmeError {
	e.Details = details
	return e
}

// CodeOf extracts the stable code from any error. Non-CmeError values map
// to InternalError so callers always have something to report.
func CodeOf(err error) ErrorCode {
	var ce *CmeError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	AmbiguousTarget: {
		{
			Type:        Rephrase,
			Safe:        true,
			Description: "Qualify the target with its kind, e.g. 'fn add' or 'struct Config'",
		},
	},
	TargetNotFound: {
		{
			Type:        Rephrase,
			Safe:        true,
			Description: "Check the spelling of the target name; the locator matches declarations, not references",
		},
	},
	HealingUnavailable: {
		{
			Type:        CheckConfig,
			Safe:        true,
			Description: "Verify editor.healerUrl points at a running inference endpoint",
		},
	},
	JobNotFound: {
		{
			Type:        RunCommand,
			Command:     "cme jobs list",
			Safe:        true,
			Description: "List known jobs; old records are evicted after the retention window",
		},
	},
	JobSpawnError: {
		{
			Type:        RunCommand,
			Command:     "cme jobs list --status=running",
			Safe:        true,
			Description: "Check for saturated workers before resubmitting",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
