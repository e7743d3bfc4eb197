package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/soundline-io/capstan/audio"
)

// Defaults for session configuration.
const (
	DefaultFetchBinary    = "yt-dlp"
	DefaultRemuxBinary    = "ffmpeg"
	DefaultReadBufferSize = 64 * 1024
	DefaultStopGrace      = 5 * time.Second
	DefaultSpawnProbe     = 250 * time.Millisecond
	DefaultFetchRetries   = 10
)

// Config configures a capture session.
type Config struct {
	// FetchBinary is the retrieval tool (default yt-dlp).
	FetchBinary string
	// RemuxBinary is the remux/transcode tool (default ffmpeg).
	RemuxBinary string
	// SampleRate is the PCM output rate in Hz (default 16000).
	SampleRate int
	// ReadBufferSize is the audio pipe read size in bytes (default 64 KiB).
	ReadBufferSize int
	// StopGrace is how long Stop waits after a termination signal before
	// force-killing a stage (default 5s).
	StopGrace time.Duration
	// SpawnProbe is how long Start watches for an immediate stage exit
	// before declaring the chain up (default 250ms).
	SpawnProbe time.Duration
	// UserAgent is an optional user agent passed to the fetch tool.
	UserAgent string

	// FetchArgv overrides the fetch tool argument list (tests).
	FetchArgv func(sourceURL string) []string
	// RemuxArgv overrides the remux tool argument list (tests).
	RemuxArgv func(archivalPath string, sampleRate int) []string
}

func (c *Config) applyDefaults() {
	if c.FetchBinary == "" {
		c.FetchBinary = DefaultFetchBinary
	}
	if c.RemuxBinary == "" {
		c.RemuxBinary = DefaultRemuxBinary
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.SpawnProbe <= 0 {
		c.SpawnProbe = DefaultSpawnProbe
	}
}

// defaultFetchArgv streams the source's best combined format to stdout.
// Retries and IPv4 forcing match what the provider tolerates in practice.
func defaultFetchArgv(cfg *Config, sourceURL string) []string {
	args := []string{
		"--quiet", "--no-warnings",
		"-f", "bv*+ba/b",
		"-o", "-",
		"--no-part",
		"--retries", strconv.Itoa(DefaultFetchRetries),
		"--fragment-retries", strconv.Itoa(DefaultFetchRetries),
		"--socket-timeout", "20",
		"--force-ipv4",
	}
	if cfg.UserAgent != "" {
		args = append(args, "--user-agent", cfg.UserAgent)
	}
	return append(args, sourceURL)
}

// defaultRemuxArgv produces two outputs from the fetch stream: the
// archival container file (stream copy, no re-encoding) and a mono
// s16le PCM stream on stdout for transcription.
func defaultRemuxArgv(archivalPath string, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-map", "0:v?",
		"-map", "0:a?",
		"-c", "copy",
		"-f", "matroska", archivalPath,
		"-map", "0:a:0",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-f", "s16le",
		"pipe:1",
	}
}

// proc wraps one stage's process handle with exit tracking.
type proc struct {
	stage Stage
	cmd   *exec.Cmd

	done     chan struct{}
	exitCode int
}

// reap waits for the process and records its exit code.
// Run in its own goroutine immediately after start. The stage's pipes
// are parent-owned os.Pipe ends rather than exec pipes, so Wait returns
// as soon as the process exits and never closes a pipe a consumer is
// still draining.
func (p *proc) reap() {
	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				p.exitCode = status.ExitStatus()
			} else {
				p.exitCode = -1
			}
		} else {
			p.exitCode = -1
		}
	}
	close(p.done)
}

// exited returns the exit code and whether the process has exited.
func (p *proc) exited() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// terminate signals the stage and escalates to SIGKILL after grace.
// Safe to call after the process has already exited.
func (p *proc) terminate(grace time.Duration) {
	if _, gone := p.exited(); gone {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

type readResult struct {
	data []byte
	err  error
}

// Session is one live two-stage capture chain. It exclusively owns both
// process handles and the audio pipe; the supervisor destroys it when
// the attempt ends, whatever the outcome.
type Session struct {
	cfg          Config
	archivalPath string

	fetch *proc
	remux *proc

	audioPipe io.ReadCloser
	// diagPipes are the parent read ends of the stage stderr pipes,
	// closed on Stop so a lingering grandchild holding the write end
	// cannot pin the diagnostics readers.
	diagPipes []io.Closer
	reads     chan readResult
	stopCh    chan struct{}

	fetchDiag *diagRing
	remuxDiag *diagRing

	lastData atomic.Int64 // unix nanos of last observed audio bytes
	flushed  atomic.Bool  // archival file fully written (remux exited 0)

	stopOnce sync.Once
}

// Start spawns the fetch and remux stages, wires the inter-stage pipe,
// and begins pumping the audio output. It fails with *SpawnError if
// either stage cannot start or exits within the probe window.
func Start(ctx context.Context, cfg Config, sourceURL, archivalPath string) (*Session, error) {
	cfg.applyDefaults()

	fetchArgv := defaultFetchArgv(&cfg, sourceURL)
	if cfg.FetchArgv != nil {
		fetchArgv = cfg.FetchArgv(sourceURL)
	}
	remuxArgv := defaultRemuxArgv(archivalPath, cfg.SampleRate)
	if cfg.RemuxArgv != nil {
		remuxArgv = cfg.RemuxArgv(archivalPath, cfg.SampleRate)
	}

	fetchCmd := exec.CommandContext(ctx, cfg.FetchBinary, fetchArgv...)
	remuxCmd := exec.CommandContext(ctx, cfg.RemuxBinary, remuxArgv...)

	s := &Session{
		cfg:          cfg,
		archivalPath: archivalPath,
		reads:        make(chan readResult, 1),
		stopCh:       make(chan struct{}),
		fetchDiag:    newDiagRing(50),
		remuxDiag:    newDiagRing(50),
	}

	// All pipes are created here and handed to the commands as plain
	// files, so the parent keeps the read ends: cmd.Wait never closes
	// them, and reaping a stage cannot race a consumer mid-drain.
	interR, interW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Stage: StageFetch, Err: err}
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		closeAll(interR, interW)
		return nil, &SpawnError{Stage: StageRemux, Err: err}
	}
	fetchErrR, fetchErrW, err := os.Pipe()
	if err != nil {
		closeAll(interR, interW, audioR, audioW)
		return nil, &SpawnError{Stage: StageFetch, Err: err}
	}
	remuxErrR, remuxErrW, err := os.Pipe()
	if err != nil {
		closeAll(interR, interW, audioR, audioW, fetchErrR, fetchErrW)
		return nil, &SpawnError{Stage: StageRemux, Err: err}
	}

	fetchCmd.Stdout = interW
	fetchCmd.Stderr = fetchErrW
	remuxCmd.Stdin = interR
	remuxCmd.Stdout = audioW
	remuxCmd.Stderr = remuxErrW

	s.audioPipe = audioR
	s.diagPipes = []io.Closer{fetchErrR, remuxErrR}

	if err := fetchCmd.Start(); err != nil {
		closeAll(interR, interW, audioR, audioW, fetchErrR, fetchErrW, remuxErrR, remuxErrW)
		return nil, &SpawnError{Stage: StageFetch, Err: err}
	}
	s.fetch = &proc{stage: StageFetch, cmd: fetchCmd, done: make(chan struct{})}
	go s.fetch.reap()

	if err := remuxCmd.Start(); err != nil {
		closeAll(interR, interW, audioR, audioW, fetchErrR, fetchErrW, remuxErrR, remuxErrW)
		s.fetch.terminate(cfg.StopGrace)
		return nil, &SpawnError{Stage: StageRemux, Err: err}
	}
	s.remux = &proc{stage: StageRemux, cmd: remuxCmd, done: make(chan struct{})}
	go s.remux.reap()

	// The children hold their own duplicates now; drop the parent's
	// write ends so pipe EOFs track the stage lifetimes.
	closeAll(interR, interW, audioW, fetchErrW, remuxErrW)

	go s.fetchDiag.consume(fetchErrR)
	go s.remuxDiag.consume(remuxErrR)

	// An immediate exit inside the probe window means the chain never
	// came up (bad URL, unusable binary). Report it as a spawn failure
	// so the supervisor skips straight to fallback.
	select {
	case <-s.fetch.done:
		if code, _ := s.fetch.exited(); code != 0 {
			s.Stop()
			return nil, &SpawnError{Stage: StageFetch,
				Err: fmt.Errorf("exited immediately with code %d", code)}
		}
	case <-s.remux.done:
		if code, _ := s.remux.exited(); code != 0 {
			s.Stop()
			return nil, &SpawnError{Stage: StageRemux,
				Err: fmt.Errorf("exited immediately with code %d", code)}
		}
	case <-time.After(cfg.SpawnProbe):
	}

	s.lastData.Store(time.Now().UnixNano())
	go s.pump()
	return s, nil
}

// closeAll closes every non-nil closer, ignoring errors.
func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}

// pump reads the audio pipe into the single-slot handoff channel until
// the pipe closes or the session stops.
func (s *Session) pump() {
	defer close(s.reads)
	for {
		buf := make([]byte, s.cfg.ReadBufferSize)
		n, err := s.audioPipe.Read(buf)
		if n > 0 {
			s.lastData.Store(time.Now().UnixNano())
			select {
			case s.reads <- readResult{data: buf[:n]}:
			case <-s.stopCh:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				select {
				case s.reads <- readResult{err: err}:
				case <-s.stopCh:
				}
			}
			return
		}
	}
}

// ReadAudio returns the next block of raw PCM bytes from the remux
// stage. It returns io.EOF on a clean end of stream, *StallError if no
// bytes arrive within timeout, and *UnexpectedExitError if a stage died
// with a non-zero exit code before end-of-stream.
func (s *Session) ReadAudio(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-s.reads:
		if !ok {
			return nil, s.finishStream()
		}
		if res.err != nil {
			return nil, fmt.Errorf("audio pipe: %w", res.err)
		}
		return res.data, nil
	case <-timer.C:
		return nil, &StallError{Waited: timeout, SinceData: time.Since(s.LastData())}
	}
}

// finishStream classifies a closed audio pipe: clean end-of-stream when
// both stages exited zero, otherwise an unexpected exit carrying the
// dying stage's diagnostics.
func (s *Session) finishStream() error {
	for _, p := range []*proc{s.remux, s.fetch} {
		select {
		case <-p.done:
		case <-time.After(s.cfg.StopGrace):
			return &UnexpectedExitError{Stage: p.stage, ExitCode: -1,
				Diagnostics: []string{"stage did not exit after closing its output"}}
		}
	}
	if code, _ := s.remux.exited(); code != 0 {
		return &UnexpectedExitError{Stage: StageRemux, ExitCode: code,
			Diagnostics: s.remuxDiag.snapshot()}
	}
	if code, _ := s.fetch.exited(); code != 0 {
		return &UnexpectedExitError{Stage: StageFetch, ExitCode: code,
			Diagnostics: s.fetchDiag.snapshot()}
	}
	s.flushed.Store(true)
	return io.EOF
}

// IsActive returns true while the remux stage has not exited.
func (s *Session) IsActive() bool {
	if s.remux == nil {
		return false
	}
	_, gone := s.remux.exited()
	return !gone
}

// LastData returns the time audio bytes were last observed.
func (s *Session) LastData() time.Time {
	return time.Unix(0, s.lastData.Load())
}

// Flushed returns true once the archival file has been fully written
// (the remux stage exited cleanly).
func (s *Session) Flushed() bool {
	return s.flushed.Load()
}

// ArchivalPath returns the archival container file path.
func (s *Session) ArchivalPath() string {
	return s.archivalPath
}

// DrainErrors returns and clears the accumulated stage diagnostics,
// most recent lines last. Non-blocking.
func (s *Session) DrainErrors() []string {
	var out []string
	for _, line := range s.fetchDiag.drain() {
		out = append(out, "fetch: "+line)
	}
	for _, line := range s.remuxDiag.drain() {
		out = append(out, "remux: "+line)
	}
	return out
}

// Stop terminates both stages (graceful signal, then kill after the
// grace period) and releases the pipe handles. Safe to call multiple
// times and after the stages have already exited.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		// Fetch first so the remux stage sees EOF and can finalize the
		// archival container before its own signal lands.
		if s.fetch != nil {
			s.fetch.terminate(s.cfg.StopGrace)
		}
		if s.remux != nil {
			s.remux.terminate(s.cfg.StopGrace)
		}
		if s.audioPipe != nil {
			_ = s.audioPipe.Close()
		}
		closeAll(s.diagPipes...)
	})
}
