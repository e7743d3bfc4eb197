package capture_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundline-io/capstan/capture"
)

// shStage swaps a stage binary for a shell script so tests can shape
// each stage's behavior exactly.
func shStage(script string) []string {
	return []string{"-c", script}
}

func testConfig(fetch, remux string) capture.Config {
	return capture.Config{
		FetchBinary: "sh",
		RemuxBinary: "sh",
		StopGrace:   2 * time.Second,
		SpawnProbe:  50 * time.Millisecond,
		FetchArgv:   func(string) []string { return shStage(fetch) },
		RemuxArgv:   func(string, int) []string { return shStage(remux) },
	}
}

func mustStart(t *testing.T, cfg capture.Config, archivalPath string) *capture.Session {
	t.Helper()
	s, err := capture.Start(context.Background(), cfg, "test://source", archivalPath)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// readUntilError drains the audio stream and returns everything read
// plus the terminating error.
func readUntilError(t *testing.T, s *capture.Session, timeout time.Duration) ([]byte, error) {
	t.Helper()
	var got []byte
	for {
		data, err := s.ReadAudio(timeout)
		got = append(got, data...)
		if err != nil {
			return got, err
		}
	}
}

func TestSessionStreamsToCleanEOF(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	payload := "pcm-bytes-0123456789"

	cfg := testConfig(
		fmt.Sprintf("printf %%s %q", payload),
		fmt.Sprintf("exec tee %q", archival),
	)
	s := mustStart(t, cfg, archival)

	got, err := readUntilError(t, s, 2*time.Second)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if string(got) != payload {
		t.Fatalf("audio bytes = %q, want %q", got, payload)
	}
	if !s.Flushed() {
		t.Error("session should report the archival file flushed")
	}
	if s.IsActive() {
		t.Error("session should be inactive after clean EOF")
	}
	onDisk, readErr := os.ReadFile(archival)
	if readErr != nil {
		t.Fatalf("reading archival file: %v", readErr)
	}
	if string(onDisk) != payload {
		t.Fatalf("archival file = %q, want %q", onDisk, payload)
	}
	if s.ArchivalPath() != archival {
		t.Fatalf("ArchivalPath = %q, want %q", s.ArchivalPath(), archival)
	}
}

func TestSessionReadStall(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	cfg := testConfig("sleep 5", "exec cat")
	s := mustStart(t, cfg, archival)

	_, err := s.ReadAudio(100 * time.Millisecond)
	var stall *capture.StallError
	if !errors.As(err, &stall) {
		t.Fatalf("expected *StallError, got %v", err)
	}
	if stall.Waited != 100*time.Millisecond {
		t.Fatalf("StallError.Waited = %v", stall.Waited)
	}
	if stall.SinceData < stall.Waited {
		t.Fatalf("StallError.SinceData = %v, want >= %v", stall.SinceData, stall.Waited)
	}
	if !s.IsActive() {
		t.Error("stalled session should still be active")
	}
}

func TestSessionRemuxUnexpectedExit(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	cfg := testConfig(
		"sleep 0.3",
		`sleep 0.2; echo "conversion failed" >&2; exit 3`,
	)
	s := mustStart(t, cfg, archival)

	_, err := readUntilError(t, s, 2*time.Second)
	var exit *capture.UnexpectedExitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected *UnexpectedExitError, got %v", err)
	}
	if exit.Stage != capture.StageRemux {
		t.Fatalf("Stage = %v, want remux", exit.Stage)
	}
	if exit.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", exit.ExitCode)
	}
	found := false
	for _, line := range exit.Diagnostics {
		if strings.Contains(line, "conversion failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("diagnostics %q missing stage stderr", exit.Diagnostics)
	}
	if s.Flushed() {
		t.Error("failed session must not report the archival file flushed")
	}
}

func TestSessionSpawnErrorMissingBinary(t *testing.T) {
	cfg := testConfig("true", "true")
	cfg.FetchBinary = filepath.Join(t.TempDir(), "no-such-tool")

	_, err := capture.Start(context.Background(), cfg, "test://source", "unused")
	var spawn *capture.SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	if spawn.Stage != capture.StageFetch {
		t.Fatalf("Stage = %v, want fetch", spawn.Stage)
	}
}

func TestSessionSpawnErrorImmediateExit(t *testing.T) {
	cfg := testConfig("exit 1", "exec cat")
	cfg.SpawnProbe = 500 * time.Millisecond

	began := time.Now()
	_, err := capture.Start(context.Background(), cfg, "test://source", "unused")
	elapsed := time.Since(began)

	var spawn *capture.SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	if spawn.Stage != capture.StageFetch {
		t.Fatalf("Stage = %v, want fetch", spawn.Stage)
	}
	if elapsed > cfg.StopGrace {
		t.Fatalf("Start took %v to report the spawn failure, want < %v", elapsed, cfg.StopGrace)
	}
}

func TestSessionSpawnErrorRemuxImmediateExit(t *testing.T) {
	cfg := testConfig("sleep 5", "exit 3")
	cfg.SpawnProbe = 500 * time.Millisecond

	began := time.Now()
	_, err := capture.Start(context.Background(), cfg, "test://source", "unused")
	elapsed := time.Since(began)

	var spawn *capture.SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	if spawn.Stage != capture.StageRemux {
		t.Fatalf("Stage = %v, want remux", spawn.Stage)
	}
	if elapsed > cfg.StopGrace {
		t.Fatalf("Start took %v to report the spawn failure, want < %v", elapsed, cfg.StopGrace)
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	cfg := testConfig("sleep 30", "exec cat")
	s := mustStart(t, cfg, archival)

	began := time.Now()
	s.Stop()
	s.Stop()
	if elapsed := time.Since(began); elapsed > cfg.StopGrace {
		t.Fatalf("Stop took %v, want < %v", elapsed, cfg.StopGrace)
	}
	if s.IsActive() {
		t.Error("session should be inactive after Stop")
	}
}

// A stage can leave behind a child of its own that inherits the pipe
// write ends. Stopping the session must still be bounded by the grace
// period; the straggler cannot pin the audio or diagnostics readers.
func TestSessionStopBoundedWithLingeringChild(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	cfg := testConfig("sleep 30 & exit 0", "exec cat")
	s := mustStart(t, cfg, archival)

	if _, err := s.ReadAudio(100 * time.Millisecond); err == nil {
		t.Fatal("expected the held-open pipe to stall the read")
	}

	began := time.Now()
	s.Stop()
	if elapsed := time.Since(began); elapsed > 2*cfg.StopGrace {
		t.Fatalf("Stop took %v with a lingering child, want < %v", elapsed, 2*cfg.StopGrace)
	}
	if s.IsActive() {
		t.Error("session should be inactive after Stop")
	}
}

func TestSessionDrainErrorsClears(t *testing.T) {
	archival := filepath.Join(t.TempDir(), "media.mkv")
	cfg := testConfig(
		`echo "fetch grumble" >&2; sleep 0.2`,
		"exec cat",
	)
	s := mustStart(t, cfg, archival)

	if _, err := readUntilError(t, s, 2*time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	lines := s.DrainErrors()
	found := false
	for _, line := range lines {
		if strings.Contains(line, "fetch grumble") {
			found = true
		}
	}
	if !found {
		t.Fatalf("DrainErrors = %q, want fetch stderr line", lines)
	}
	if again := s.DrainErrors(); len(again) != 0 {
		t.Fatalf("second drain should be empty, got %q", again)
	}
}
