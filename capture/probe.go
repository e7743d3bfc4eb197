package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/soundline-io/capstan/types"
)

// ProbeConfig configures the pre-capture metadata probe.
type ProbeConfig struct {
	// FetchBinary is the retrieval tool (default yt-dlp).
	FetchBinary string
	// Argv overrides the probe argument list (tests).
	Argv func(sourceURL string) []string
}

func defaultProbeArgv(sourceURL string) []string {
	return []string{
		"--quiet", "--no-warnings",
		"--dump-json",
		"--skip-download",
		"--force-ipv4",
		sourceURL,
	}
}

// probePayload is the subset of the fetch tool's metadata dump we use.
type probePayload struct {
	Title        string  `json:"title"`
	UploadDate   string  `json:"upload_date"`
	Duration     float64 `json:"duration"`
	Channel      string  `json:"channel"`
	Uploader     string  `json:"uploader"`
	ID           string  `json:"id"`
	Availability string  `json:"availability"`
}

// Probe asks the fetch tool for source metadata without downloading.
// The result feeds artifact naming and the destination record fields; a
// probe failure is a job-level error, since nothing can be named or
// recorded without it.
func Probe(ctx context.Context, cfg ProbeConfig, sourceURL string) (*types.SourceProbe, error) {
	if cfg.FetchBinary == "" {
		cfg.FetchBinary = DefaultFetchBinary
	}
	argv := defaultProbeArgv(sourceURL)
	if cfg.Argv != nil {
		argv = cfg.Argv(sourceURL)
	}

	cmd := exec.CommandContext(ctx, cfg.FetchBinary, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("source probe: %w: %s", err, lastLine(detail))
		}
		return nil, fmt.Errorf("source probe: %w", err)
	}

	var payload probePayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("source probe: decoding metadata: %w", err)
	}

	channel := payload.Channel
	if channel == "" {
		channel = payload.Uploader
	}
	return &types.SourceProbe{
		Title:        payload.Title,
		UploadDate:   formatUploadDate(payload.UploadDate),
		DurationSec:  payload.Duration,
		Channel:      channel,
		SourceID:     payload.ID,
		Availability: payload.Availability,
	}, nil
}

// formatUploadDate converts the provider's compact YYYYMMDD form to
// YYYY-MM-DD. Anything else passes through unchanged.
func formatUploadDate(d string) string {
	if len(d) != 8 {
		return d
	}
	for _, r := range d {
		if r < '0' || r > '9' {
			return d
		}
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
