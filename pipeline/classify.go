package pipeline

import (
	"errors"

	"github.com/soundline-io/capstan/capture"
	"github.com/soundline-io/capstan/engine"
	"github.com/soundline-io/capstan/transcribe"
)

// Error categories surfaced in JobResult.ErrorCategory and in failure
// reasons. Streaming categories are attempt-local; the rest are
// job-terminal.
const (
	CategorySpawnError     = "spawn_error"
	CategoryStall          = "stall"
	CategoryUnexpectedExit = "unexpected_exit"
	CategoryAttemptTimeout = "attempt_timeout"
	CategoryEngineError    = "engine_error"
	CategoryProbeFailed    = "probe_failed"
	CategoryFallbackFailed = "fallback_failed"
	CategoryPartialCommit  = "partial_commit"
	CategoryInvalidJob     = "invalid_job"
	CategoryIncomplete     = "incomplete_capture"
)

// classifyAttemptError maps a streaming-attempt failure to a category.
// Every streaming failure is recoverable by falling back; the category
// only feeds logging and the final result when fallback also fails.
func classifyAttemptError(err error) string {
	var spawn *capture.SpawnError
	var stall *capture.StallError
	var exit *capture.UnexpectedExitError
	var timeout *transcribe.AttemptTimeoutError
	var engErr *engine.Error

	switch {
	case errors.As(err, &spawn):
		return CategorySpawnError
	case errors.As(err, &stall):
		return CategoryStall
	case errors.As(err, &exit):
		return CategoryUnexpectedExit
	case errors.As(err, &timeout):
		return CategoryAttemptTimeout
	case errors.As(err, &engErr):
		return CategoryEngineError
	default:
		return CategoryUnexpectedExit
	}
}
