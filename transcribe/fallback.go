package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/soundline-io/capstan/audio"
	"github.com/soundline-io/capstan/engine"
	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/types"
)

// FallbackConfig configures the two-phase recovery path.
type FallbackConfig struct {
	// FetchBinary is the retrieval tool (default yt-dlp).
	FetchBinary string
	// DecodeBinary extracts PCM from the downloaded file (default ffmpeg).
	DecodeBinary string
	// SampleRate is the PCM rate in Hz (default 16000).
	SampleRate int
	// Chunker bounds per-submission audio size.
	Chunker audio.ChunkerConfig

	// FetchArgv overrides the retrieval argument list (tests).
	FetchArgv func(sourceURL, outPath string) []string
	// DecodeArgv overrides the decode argument list (tests).
	DecodeArgv func(mediaPath string, sampleRate int) []string
}

func (c *FallbackConfig) applyDefaults() {
	if c.FetchBinary == "" {
		c.FetchBinary = "yt-dlp"
	}
	if c.DecodeBinary == "" {
		c.DecodeBinary = "ffmpeg"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
}

func defaultFallbackFetchArgv(sourceURL, outPath string) []string {
	return []string{
		"--quiet", "--no-warnings",
		"-f", "b",
		"-o", outPath,
		"--no-part",
		"--force-ipv4",
		sourceURL,
	}
}

func defaultDecodeArgv(mediaPath string, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", mediaPath,
		"-map", "0:a:0",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-f", "s16le",
		"pipe:1",
	}
}

// Fallback runs the two-phase recovery path: download the whole source
// to disk, then decode and transcribe it in one pass. It starts from
// scratch and never reuses partial streaming output; its failures are
// terminal for the job.
type Fallback struct {
	cfg     FallbackConfig
	adapter *engine.Adapter
	logger  *log.Logger
}

// NewFallback creates a fallback transcriber over the engine.
// logger may be nil.
func NewFallback(eng engine.Engine, cfg FallbackConfig, logger *log.Logger) *Fallback {
	cfg.applyDefaults()
	return &Fallback{
		cfg:     cfg,
		adapter: engine.NewAdapter(eng),
		logger:  logger,
	}
}

// Run downloads the source to mediaPath and transcribes it whole.
// The transcription is internally chunked for memory bounds but is a
// single logical pass.
func (f *Fallback) Run(ctx context.Context, sourceURL, mediaPath string) (string, []types.Segment, error) {
	if err := f.Download(ctx, sourceURL, mediaPath); err != nil {
		return "", nil, err
	}
	if f.logger != nil {
		f.logger.Info("fallback download complete", map[string]any{
			"media_path": mediaPath,
		})
	}
	return f.TranscribeFile(ctx, mediaPath)
}

// Download retrieves the whole source to outPath.
func (f *Fallback) Download(ctx context.Context, sourceURL, outPath string) error {
	argv := defaultFallbackFetchArgv(sourceURL, outPath)
	if f.cfg.FetchArgv != nil {
		argv = f.cfg.FetchArgv(sourceURL, outPath)
	}

	cmd := exec.CommandContext(ctx, f.cfg.FetchBinary, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("fallback download: %w (%s)", err, stderrTail(&stderr))
	}
	return nil
}

// TranscribeFile decodes the whole file to PCM and feeds it through
// the same chunk rules as the streaming path, sequentially.
func (f *Fallback) TranscribeFile(ctx context.Context, mediaPath string) (string, []types.Segment, error) {
	chunker, err := audio.NewChunker(f.cfg.Chunker)
	if err != nil {
		return "", nil, err
	}

	argv := defaultDecodeArgv(mediaPath, f.cfg.SampleRate)
	if f.cfg.DecodeArgv != nil {
		argv = f.cfg.DecodeArgv(mediaPath, f.cfg.SampleRate)
	}

	cmd := exec.CommandContext(ctx, f.cfg.DecodeBinary, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	pcm, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, fmt.Errorf("fallback decode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("fallback decode: %w", err)
	}

	acc := &types.TranscriptAccumulator{}
	buf := make([]byte, 64*1024)
	var readErr error
	for readErr == nil {
		var n int
		n, readErr = pcm.Read(buf)
		if n > 0 {
			for _, ch := range chunker.Write(buf[:n]) {
				if err := f.submit(ctx, ch, acc); err != nil {
					_ = cmd.Process.Kill()
					_ = cmd.Wait()
					return "", nil, err
				}
			}
		}
	}
	if readErr != io.EOF {
		_ = cmd.Wait()
		return "", nil, fmt.Errorf("fallback decode: %w", readErr)
	}
	if err := cmd.Wait(); err != nil {
		return "", nil, fmt.Errorf("fallback decode: %w (%s)", err, stderrTail(&stderr))
	}

	if tail, _ := chunker.Flush(); tail != nil {
		if err := f.submit(ctx, tail, acc); err != nil {
			return "", nil, err
		}
	}
	return acc.Text(), acc.Segments(), nil
}

func (f *Fallback) submit(ctx context.Context, ch *audio.Chunk, acc *types.TranscriptAccumulator) error {
	pr, err := f.adapter.Transcribe(ctx, ch)
	if err != nil {
		return err
	}
	acc.Append(pr)
	return nil
}

// stderrTail returns the last few stderr lines for diagnostics.
func stderrTail(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "; ")
}
