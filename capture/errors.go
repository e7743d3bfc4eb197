// Package capture owns the two-stage subprocess chain that retrieves a
// remote media source and bifurcates it into an archival container file
// and a raw PCM audio stream.
//
// A Session exclusively owns both process handles and the audio pipe.
// Callers interact only through Start/ReadAudio/IsActive/DrainErrors/Stop
// so lifecycle bugs (leaked processes, double-close) stay confined here.
package capture

import (
	"fmt"
	"strings"
	"time"
)

// Stage names the two subprocess stages for diagnostics.
type Stage string

// Subprocess stages.
const (
	StageFetch Stage = "fetch"
	StageRemux Stage = "remux"
)

// SpawnError indicates a stage binary could not be started.
// The streaming path is simply unavailable; the supervisor goes
// straight to fallback.
type SpawnError struct {
	Stage Stage
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error { return e.Err }

// StallError indicates no audio bytes arrived within the read timeout.
// It bounds how long the pipeline waits on a stuck upstream.
type StallError struct {
	Waited time.Duration
	// SinceData is how long ago the session last observed audio bytes,
	// which can exceed Waited when earlier reads returned data late.
	SinceData time.Duration
}

func (e *StallError) Error() string {
	if e.SinceData > e.Waited {
		return fmt.Sprintf("no audio data within %v (last data %v ago)",
			e.Waited, e.SinceData.Round(time.Millisecond))
	}
	return fmt.Sprintf("no audio data within %v", e.Waited)
}

// UnexpectedExitError indicates a stage terminated with a non-zero exit
// code before end-of-stream was cleanly signalled. Diagnostics carry the
// stage's recent stderr lines.
type UnexpectedExitError struct {
	Stage       Stage
	ExitCode    int
	Diagnostics []string
}

func (e *UnexpectedExitError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("%s exited with code %d", e.Stage, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s",
		e.Stage, e.ExitCode, strings.Join(e.Diagnostics, "; "))
}
