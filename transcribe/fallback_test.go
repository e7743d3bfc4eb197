package transcribe_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soundline-io/capstan/transcribe"
)

func shFallbackConfig() transcribe.FallbackConfig {
	return transcribe.FallbackConfig{
		FetchBinary:  "sh",
		DecodeBinary: "sh",
		SampleRate:   testRate,
		Chunker:      testChunker(),
	}
}

func TestFallbackRunWholeFile(t *testing.T) {
	payload := strings.Repeat("x", len(seconds(2.5)))

	cfg := shFallbackConfig()
	cfg.FetchArgv = func(_, outPath string) []string {
		return []string{"-c", fmt.Sprintf("printf %%s %q > %q", payload, outPath)}
	}
	cfg.DecodeArgv = func(mediaPath string, _ int) []string {
		return []string{"-c", fmt.Sprintf("exec cat %q", mediaPath)}
	}

	eng := &countingEngine{}
	fb := transcribe.NewFallback(eng, cfg, nil)

	mediaPath := filepath.Join(t.TempDir(), "media.mp4")
	text, segs, err := fb.Run(context.Background(), "test://source", mediaPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 2.5s at a 1s chunk / 0.5s tail threshold: three submissions.
	if text != "t0 t1 t2" {
		t.Fatalf("text = %q", text)
	}
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want 3", len(segs))
	}
	if _, statErr := os.Stat(mediaPath); statErr != nil {
		t.Fatalf("media file missing: %v", statErr)
	}
}

func TestFallbackDownloadFailureCarriesDiagnostics(t *testing.T) {
	cfg := shFallbackConfig()
	cfg.FetchArgv = func(_, _ string) []string {
		return []string{"-c", `echo "video unavailable" >&2; exit 1`}
	}

	fb := transcribe.NewFallback(&countingEngine{}, cfg, nil)
	_, _, err := fb.Run(context.Background(), "test://source", filepath.Join(t.TempDir(), "media.mp4"))
	if err == nil {
		t.Fatal("expected download error")
	}
	if !strings.Contains(err.Error(), "video unavailable") {
		t.Fatalf("error %q missing subprocess stderr", err)
	}
}

func TestFallbackDecodeFailure(t *testing.T) {
	cfg := shFallbackConfig()
	cfg.FetchArgv = func(_, outPath string) []string {
		return []string{"-c", fmt.Sprintf(": > %q", outPath)}
	}
	cfg.DecodeArgv = func(_ string, _ int) []string {
		return []string{"-c", `echo "moov atom not found" >&2; exit 1`}
	}

	fb := transcribe.NewFallback(&countingEngine{}, cfg, nil)
	_, _, err := fb.Run(context.Background(), "test://source", filepath.Join(t.TempDir(), "media.mp4"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "moov atom") {
		t.Fatalf("error %q missing decoder stderr", err)
	}
}
