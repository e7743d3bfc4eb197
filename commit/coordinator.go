// Package commit publishes a job's artifacts and records in a fixed
// order: media, transcript, subtitle, destination record, source record
// update. Ordering is the integrity mechanism — the source record is
// linked last, so a record pointing at artifacts implies the artifacts
// exist. A step that exhausts its retries stops the chain and reports a
// partial commit for operator triage.
package commit

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/store"
	"github.com/soundline-io/capstan/types"
)

// Defaults for the commit coordinator.
const (
	DefaultRetries        = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultPreviewChars   = 2000
)

// Config configures the commit coordinator.
type Config struct {
	// Retries is the per-step retry count (default 3).
	Retries int
	// InitialBackoff is the first retry delay; it doubles per retry
	// (default 2s).
	InitialBackoff time.Duration
	// PreviewChars bounds the transcript preview stored on the record
	// (default 2000).
	PreviewChars int
}

func (c *Config) applyDefaults() {
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.PreviewChars <= 0 {
		c.PreviewChars = DefaultPreviewChars
	}
}

// Coordinator runs the ordered commit sequence for one bundle.
type Coordinator struct {
	artifacts store.ArtifactStore
	records   store.RecordStore
	cfg       Config
	logger    *log.Logger
	metrics   *metrics.Collector
}

// New creates a commit coordinator. logger and collector may be nil.
func New(artifacts store.ArtifactStore, records store.RecordStore, cfg Config, logger *log.Logger, collector *metrics.Collector) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		artifacts: artifacts,
		records:   records,
		cfg:       cfg,
		logger:    logger,
		metrics:   collector,
	}
}

// Commit publishes the bundle. The result reports either a complete
// commit or the step that failed after retries; completed steps are
// never rolled back.
func (c *Coordinator) Commit(ctx context.Context, bundle *types.CommitBundle) *types.CommitResult {
	result := &types.CommitResult{}
	base := bundle.Probe.BaseName()

	var folder *store.Folder
	ensureFolder := func(ctx context.Context) error {
		if folder != nil {
			return nil
		}
		var err error
		folder, err = c.artifacts.EnsureFolder(ctx, bundle.ParentFolderID, bundle.FolderName)
		if err == nil {
			result.FolderURL = folder.URL
		}
		return err
	}

	uploadMedia := func(ctx context.Context) error {
		if err := ensureFolder(ctx); err != nil {
			return err
		}
		f, err := os.Open(bundle.MediaPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		name := base + filepath.Ext(bundle.MediaPath)
		art, err := c.artifacts.Upload(ctx, folder, name, contentTypeFor(bundle.MediaPath), f)
		if err != nil {
			return err
		}
		result.MediaURL = art.URL
		return nil
	}

	uploadTranscript := func(ctx context.Context) error {
		if err := ensureFolder(ctx); err != nil {
			return err
		}
		art, err := c.artifacts.Upload(ctx, folder, base+".txt", "text/plain",
			strings.NewReader(bundle.TranscriptText))
		if err != nil {
			return err
		}
		result.TranscriptURL = art.URL
		return nil
	}

	uploadSubtitle := func(ctx context.Context) error {
		f, err := os.Open(bundle.SubtitlePath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		art, err := c.artifacts.Upload(ctx, folder, base+".srt", "application/x-subrip", f)
		if err != nil {
			return err
		}
		result.SubtitleURL = art.URL
		return nil
	}

	writeRecord := func(ctx context.Context) error {
		id, url, err := c.records.CreateDestinationRecord(ctx, &store.DestinationRecord{
			Collection:        bundle.Collection,
			Title:             bundle.Probe.Title,
			SourceURL:         bundle.Job.SourceURL,
			Channel:           bundle.Probe.Channel,
			UploadDate:        bundle.Probe.UploadDate,
			DurationSec:       bundle.Probe.DurationSec,
			ProcessingMode:    string(bundle.Mode),
			ChunksProcessed:   bundle.ChunksProcessed,
			TranscriptPreview: truncate(bundle.TranscriptText, c.cfg.PreviewChars),
			MediaURL:          result.MediaURL,
			TranscriptURL:     result.TranscriptURL,
			FolderURL:         result.FolderURL,
		})
		if err != nil {
			return err
		}
		result.RecordID, result.RecordURL = id, url
		return nil
	}

	updateSource := func(ctx context.Context) error {
		return c.records.UpdateSourceRecord(ctx, bundle.Job.SourceRecordID, &store.SourcePatch{
			Status:        "complete",
			DestRecordURL: result.RecordURL,
			FolderURL:     result.FolderURL,
		})
	}

	steps := []struct {
		name types.CommitStep
		skip bool
		run  func(context.Context) error
	}{
		{types.StepUploadMedia, bundle.MediaPath == "", uploadMedia},
		{types.StepUploadTranscript, false, uploadTranscript},
		{types.StepUploadSubtitle, bundle.SubtitlePath == "", uploadSubtitle},
		{types.StepWriteDestRecord, false, writeRecord},
		{types.StepUpdateSourceRecord, bundle.Job.SourceRecordID == "", updateSource},
	}

	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := c.retryStep(ctx, step.name, step.run); err != nil {
			result.FailedStep = step.name
			result.Reason = err.Error()
			c.metrics.PartialCommit()
			if c.logger != nil {
				c.logger.Error("commit incomplete", map[string]any{
					"failed_step":     string(step.name),
					"completed_steps": len(result.CompletedSteps),
					"error":           err.Error(),
				})
			}
			return result
		}
		result.CompletedSteps = append(result.CompletedSteps, step.name)
	}
	result.Complete = true
	return result
}

// retryStep runs one step with bounded exponential backoff.
func (c *Coordinator) retryStep(ctx context.Context, name types.CommitStep, fn func(context.Context) error) error {
	attempts := 1 + c.cfg.Retries
	backoff := c.cfg.InitialBackoff

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			c.metrics.CommitRetry()
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if c.logger != nil {
			c.logger.Warn("commit step attempt failed", map[string]any{
				"step":    string(name),
				"attempt": i + 1,
				"error":   lastErr.Error(),
			})
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// truncate bounds s to max runes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
