package transcribe

import (
	"fmt"
	"time"
)

// AttemptTimeoutError means a streaming attempt exceeded its overall
// deadline and was abandoned. The supervisor treats it like any other
// streaming failure and moves to the fallback path.
type AttemptTimeoutError struct {
	Timeout time.Duration
}

func (e *AttemptTimeoutError) Error() string {
	return fmt.Sprintf("streaming attempt exceeded %s deadline", e.Timeout)
}
