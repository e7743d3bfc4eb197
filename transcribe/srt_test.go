package transcribe_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soundline-io/capstan/transcribe"
	"github.com/soundline-io/capstan/types"
)

func TestRenderSRT(t *testing.T) {
	segs := []types.Segment{
		{Start: 0, End: 2.5, Text: " Hello there. "},
		{Start: 2.5, End: 4, Text: "   "},
		{Start: 3661.5, End: 3663, Text: "An hour in."},
	}
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello there.\n\n" +
		"2\n01:01:01,500 --> 01:01:03,000\nAn hour in.\n\n"
	if got := transcribe.RenderSRT(segs); got != want {
		t.Fatalf("RenderSRT = %q, want %q", got, want)
	}
}

func TestRenderSRTEmpty(t *testing.T) {
	if got := transcribe.RenderSRT(nil); got != "" {
		t.Fatalf("RenderSRT(nil) = %q", got)
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")

	wrote, err := transcribe.WriteSRT(path, nil)
	if err != nil || wrote {
		t.Fatalf("WriteSRT with no segments = (%v, %v), want (false, nil)", wrote, err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("no file should be written for empty segments")
	}

	wrote, err = transcribe.WriteSRT(path, []types.Segment{{Start: 0, End: 1, Text: "hi"}})
	if err != nil || !wrote {
		t.Fatalf("WriteSRT = (%v, %v), want (true, nil)", wrote, err)
	}
	body, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("reading subtitles: %v", readErr)
	}
	if string(body) != "1\n00:00:00,000 --> 00:00:01,000\nhi\n\n" {
		t.Fatalf("subtitle body = %q", body)
	}
}
