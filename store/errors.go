package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the target resource does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (no credentials, 401).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrNetwork indicates a network-level failure.
	ErrNetwork = errors.New("network error")
)

// StorageError wraps an underlying error with a classification kind,
// the failing operation, and the target involved. The original error
// stays in the chain for errors.As.
type StorageError struct {
	Kind   error
	Op     string
	Target string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapErr classifies and wraps an operation error. Returns nil for nil.
func wrapErr(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classify(err), Op: op, Target: target, Err: err}
}

// classify maps an error to the closest sentinel, by type where
// possible and by message pattern otherwise.
func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "404", "notfound", "not found", "no such", "does not exist"):
		return ErrNotFound
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "429", "slowdown", "rate exceeded", "throttl", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "401", "unauthorized", "credentials", "expiredtoken", "signaturedoesnotmatch"):
		return ErrAuth
	case containsAny(msg, "403", "forbidden", "accessdenied", "permission denied"):
		return ErrAccessDenied
	case containsAny(msg, "connection refused", "no route to host", "dial tcp", "i/o timeout", "network unreachable"):
		return ErrNetwork
	default:
		return errors.New("storage error")
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
