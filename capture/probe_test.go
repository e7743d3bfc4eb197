package capture_test

import (
	"context"
	"strings"
	"testing"

	"github.com/soundline-io/capstan/capture"
)

func TestProbeParsesMetadata(t *testing.T) {
	dump := `{"title":"Weekly Sync: Q3 Review","upload_date":"20260815",` +
		`"duration":1834.2,"channel":"Ops Channel","id":"abc123",` +
		`"availability":"unlisted"}`
	cfg := capture.ProbeConfig{
		FetchBinary: "sh",
		Argv: func(string) []string {
			return []string{"-c", "printf %s '" + dump + "'"}
		},
	}

	probe, err := capture.Probe(context.Background(), cfg, "test://source")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probe.Title != "Weekly Sync: Q3 Review" {
		t.Errorf("Title = %q", probe.Title)
	}
	if probe.UploadDate != "2026-08-15" {
		t.Errorf("UploadDate = %q, want 2026-08-15", probe.UploadDate)
	}
	if probe.DurationSec != 1834.2 {
		t.Errorf("DurationSec = %v", probe.DurationSec)
	}
	if probe.SourceID != "abc123" || probe.Availability != "unlisted" {
		t.Errorf("SourceID/Availability = %q/%q", probe.SourceID, probe.Availability)
	}
	if got := probe.BaseName(); got != "2026-08-15 - Weekly Sync Q3 Review" {
		t.Errorf("BaseName = %q", got)
	}
}

func TestProbeFallsBackToUploader(t *testing.T) {
	cfg := capture.ProbeConfig{
		FetchBinary: "sh",
		Argv: func(string) []string {
			return []string{"-c", `printf %s '{"title":"x","uploader":"Solo Act"}'`}
		},
	}
	probe, err := capture.Probe(context.Background(), cfg, "test://source")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probe.Channel != "Solo Act" {
		t.Errorf("Channel = %q, want uploader fallback", probe.Channel)
	}
}

func TestProbeFailureCarriesStderr(t *testing.T) {
	cfg := capture.ProbeConfig{
		FetchBinary: "sh",
		Argv: func(string) []string {
			return []string{"-c", `echo "ERROR: video unavailable" >&2; exit 1`}
		},
	}
	_, err := capture.Probe(context.Background(), cfg, "test://source")
	if err == nil {
		t.Fatal("expected probe error")
	}
	if !strings.Contains(err.Error(), "video unavailable") {
		t.Fatalf("error %q missing tool stderr", err)
	}
}
