package commit_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundline-io/capstan/commit"
	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/store"
	"github.com/soundline-io/capstan/types"
)

type fakeArtifacts struct {
	uploads    []string
	failUpload map[string]int // name -> remaining failures
}

func (f *fakeArtifacts) EnsureFolder(_ context.Context, parentID, name string) (*store.Folder, error) {
	return &store.Folder{ID: parentID + "/" + name, URL: "https://files.example/" + name}, nil
}

func (f *fakeArtifacts) Upload(_ context.Context, _ *store.Folder, name, _ string, r io.Reader) (*store.Artifact, error) {
	if n := f.failUpload[name]; n > 0 {
		f.failUpload[name] = n - 1
		return nil, errors.New("upload refused")
	}
	_, _ = io.Copy(io.Discard, r)
	f.uploads = append(f.uploads, name)
	return &store.Artifact{ID: name, URL: "https://files.example/" + name}, nil
}

type fakeRecords struct {
	created       []*store.DestinationRecord
	patched       []string
	failCreate    bool
	failPatchLeft int
}

func (f *fakeRecords) CreateDestinationRecord(_ context.Context, rec *store.DestinationRecord) (string, string, error) {
	if f.failCreate {
		return "", "", errors.New("record API down")
	}
	f.created = append(f.created, rec)
	return "rec-1", "https://records.example/rec-1", nil
}

func (f *fakeRecords) UpdateSourceRecord(_ context.Context, id string, _ *store.SourcePatch) error {
	if f.failPatchLeft > 0 {
		f.failPatchLeft--
		return errors.New("conflict")
	}
	f.patched = append(f.patched, id)
	return nil
}

func testBundle(t *testing.T) *types.CommitBundle {
	t.Helper()
	mediaPath := filepath.Join(t.TempDir(), "media.mkv")
	if err := os.WriteFile(mediaPath, []byte("media-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &types.CommitBundle{
		Job: &types.JobDescriptor{
			JobID:          "job-1",
			SourceURL:      "test://source",
			RoutingKey:     "podcasts",
			SourceRecordID: "src-9",
			Attempt:        1,
		},
		Probe: &types.SourceProbe{
			Title:      "Weekly Sync",
			UploadDate: "2026-08-15",
			Channel:    "Ops",
		},
		MediaPath:       mediaPath,
		TranscriptText:  "hello world",
		Collection:      "podcast-notes",
		ParentFolderID:  "parent-1",
		FolderName:      "2026-08-15 - Weekly Sync",
		Mode:            types.PathStreaming,
		ChunksProcessed: 4,
	}
}

func fastConfig() commit.Config {
	return commit.Config{Retries: 3, InitialBackoff: time.Millisecond}
}

func TestCommitCompleteInOrder(t *testing.T) {
	artifacts := &fakeArtifacts{}
	records := &fakeRecords{}
	c := commit.New(artifacts, records, fastConfig(), nil, nil)

	res := c.Commit(context.Background(), testBundle(t))
	if !res.Complete {
		t.Fatalf("commit incomplete: %+v", res)
	}
	wantSteps := []types.CommitStep{
		types.StepUploadMedia,
		types.StepUploadTranscript,
		types.StepWriteDestRecord,
		types.StepUpdateSourceRecord,
	}
	if len(res.CompletedSteps) != len(wantSteps) {
		t.Fatalf("CompletedSteps = %v", res.CompletedSteps)
	}
	for i, s := range wantSteps {
		if res.CompletedSteps[i] != s {
			t.Fatalf("step %d = %s, want %s", i, res.CompletedSteps[i], s)
		}
	}
	if res.MediaURL == "" || res.TranscriptURL == "" || res.RecordURL == "" {
		t.Fatalf("missing URLs: %+v", res)
	}
	if len(records.patched) != 1 || records.patched[0] != "src-9" {
		t.Fatalf("patched = %v", records.patched)
	}
	rec := records.created[0]
	if rec.Collection != "podcast-notes" || rec.ProcessingMode != "streaming" || rec.ChunksProcessed != 4 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestCommitIncludesSubtitleWhenPresent(t *testing.T) {
	bundle := testBundle(t)
	bundle.SubtitlePath = filepath.Join(t.TempDir(), "subs.srt")
	if err := os.WriteFile(bundle.SubtitlePath, []byte("1\n..."), 0o644); err != nil {
		t.Fatal(err)
	}

	artifacts := &fakeArtifacts{}
	c := commit.New(artifacts, &fakeRecords{}, fastConfig(), nil, nil)
	res := c.Commit(context.Background(), bundle)
	if !res.Complete || res.SubtitleURL == "" {
		t.Fatalf("result = %+v", res)
	}
	if artifacts.uploads[2] != "2026-08-15 - Weekly Sync.srt" {
		t.Fatalf("uploads = %v", artifacts.uploads)
	}
}

func TestCommitPartialStopsChain(t *testing.T) {
	artifacts := &fakeArtifacts{}
	records := &fakeRecords{failCreate: true}
	collector := metrics.NewCollector()
	c := commit.New(artifacts, records, commit.Config{Retries: 1, InitialBackoff: time.Millisecond}, nil, collector)

	res := c.Commit(context.Background(), testBundle(t))
	if res.Complete {
		t.Fatal("commit should not be complete")
	}
	if res.FailedStep != types.StepWriteDestRecord {
		t.Fatalf("FailedStep = %s", res.FailedStep)
	}
	// Uploads completed, but the source record must never be linked to a
	// record that was not written.
	if len(res.CompletedSteps) != 2 {
		t.Fatalf("CompletedSteps = %v", res.CompletedSteps)
	}
	if len(records.patched) != 0 {
		t.Fatalf("source record patched after failed record write: %v", records.patched)
	}
	if res.Reason == "" {
		t.Fatal("partial commit must carry a reason")
	}
	if collector.Snapshot().PartialCommits != 1 {
		t.Fatalf("PartialCommits = %d", collector.Snapshot().PartialCommits)
	}
}

func TestCommitRetriesTransientFailures(t *testing.T) {
	bundle := testBundle(t)
	mediaName := fmt.Sprintf("%s.mkv", bundle.Probe.BaseName())
	artifacts := &fakeArtifacts{failUpload: map[string]int{mediaName: 2}}
	collector := metrics.NewCollector()
	c := commit.New(artifacts, &fakeRecords{}, fastConfig(), nil, collector)

	res := c.Commit(context.Background(), bundle)
	if !res.Complete {
		t.Fatalf("commit failed despite retries: %+v", res)
	}
	if collector.Snapshot().CommitRetries != 2 {
		t.Fatalf("CommitRetries = %d, want 2", collector.Snapshot().CommitRetries)
	}
}

func TestCommitSkipsSourceUpdateWithoutRecordID(t *testing.T) {
	bundle := testBundle(t)
	bundle.Job.SourceRecordID = ""
	records := &fakeRecords{}
	c := commit.New(&fakeArtifacts{}, records, fastConfig(), nil, nil)

	res := c.Commit(context.Background(), bundle)
	if !res.Complete {
		t.Fatalf("result = %+v", res)
	}
	if len(records.patched) != 0 {
		t.Fatalf("patched = %v", records.patched)
	}
}
