// Package pipeline drives one job end to end: probe, streaming capture
// with incremental transcription, fallback recovery when streaming
// cannot complete, and the ordered commit. The supervisor owns the
// attempt lifecycle; sessions and scratch files never outlive it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundline-io/capstan/audio"
	"github.com/soundline-io/capstan/capture"
	"github.com/soundline-io/capstan/engine"
	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/status"
	"github.com/soundline-io/capstan/transcribe"
	"github.com/soundline-io/capstan/types"
)

// Config configures a supervisor.
type Config struct {
	// Capture configures the streaming capture session.
	Capture capture.Config
	// Probe configures the pre-capture metadata probe.
	Probe capture.ProbeConfig
	// Transcribe configures the incremental transcriber.
	Transcribe transcribe.Config
	// Fallback configures the two-phase recovery path.
	Fallback transcribe.FallbackConfig
	// WorkDir is the scratch directory root. Empty uses the system
	// temp directory.
	WorkDir string
	// Collection is the destination record collection for this job's
	// routing key.
	Collection string
	// ParentFolderID is the resolved parent storage folder.
	ParentFolderID string
}

// session is what the supervisor needs from a live capture chain.
// *capture.Session satisfies it.
type session interface {
	transcribe.AudioSource
	Stop()
	Flushed() bool
	DrainErrors() []string
}

// Committer publishes a finished bundle. *commit.Coordinator satisfies it.
type Committer interface {
	Commit(ctx context.Context, bundle *types.CommitBundle) *types.CommitResult
}

// incrementalRunner and fallbackRunner are the transcription seams.
type incrementalRunner interface {
	Run(ctx context.Context, src transcribe.AudioSource, onPartial func(*types.PartialResult)) (*types.TranscriptAccumulator, error)
}

type fallbackRunner interface {
	Download(ctx context.Context, sourceURL, outPath string) error
	TranscribeFile(ctx context.Context, mediaPath string) (string, []types.Segment, error)
}

// Supervisor processes jobs one at a time. At most one session and one
// attempt are live per job; a job takes exactly one of the
// streaming-only or streaming-then-fallback paths.
type Supervisor struct {
	cfg       Config
	committer Committer
	reporter  *status.Reporter
	metrics   *metrics.Collector

	incremental  incrementalRunner
	fallback     fallbackRunner
	startSession func(ctx context.Context, cfg capture.Config, sourceURL, archivalPath string) (session, error)
	probe        func(ctx context.Context, cfg capture.ProbeConfig, sourceURL string) (*types.SourceProbe, error)
}

// New creates a supervisor over the given engine and committer.
// reporter and collector may be nil.
func New(cfg Config, eng engine.Engine, committer Committer, reporter *status.Reporter, collector *metrics.Collector) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		committer:   committer,
		reporter:    reporter,
		metrics:     collector,
		incremental: transcribe.NewIncremental(eng, cfg.Transcribe, nil),
		fallback:    transcribe.NewFallback(eng, cfg.Fallback, nil),
		startSession: func(ctx context.Context, c capture.Config, sourceURL, archivalPath string) (session, error) {
			return capture.Start(ctx, c, sourceURL, archivalPath)
		},
		probe: capture.Probe,
	}
}

// attempt is the internal result of one processing path.
type attempt struct {
	outcome *types.AttemptOutcome
	// category is set for failed attempts.
	category string
}

// Process runs one job to a terminal state and returns its result.
// It never panics across the boundary and always reports a terminal
// status, success or error.
func (s *Supervisor) Process(ctx context.Context, job *types.JobDescriptor) *types.JobResult {
	start := time.Now()
	result := &types.JobResult{JobID: job.JobID, SourceURL: job.SourceURL}

	if err := job.Validate(); err != nil {
		return s.fail(ctx, job, result, start, CategoryInvalidJob, err.Error(), "")
	}
	result.JobID = job.JobID

	logger := log.NewLogger(job)
	logger.Info("job accepted", map[string]any{"routing_key": job.RoutingKey})
	s.report(ctx, job, types.StatusProcessing, "", "")

	workDir, err := os.MkdirTemp(s.cfg.WorkDir, "capstan-"+job.JobID+"-")
	if err != nil {
		return s.fail(ctx, job, result, start, CategoryInvalidJob,
			fmt.Sprintf("creating workspace: %v", err), "")
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	probe, err := s.probe(ctx, s.cfg.Probe, job.SourceURL)
	if err != nil {
		logger.Error("source probe failed", map[string]any{"error": err.Error()})
		return s.fail(ctx, job, result, start, CategoryProbeFailed, err.Error(), "")
	}
	base := probe.BaseName()
	logger.Info("source probed", map[string]any{
		"title":        probe.Title,
		"duration_sec": probe.DurationSec,
	})

	att := s.runStreaming(ctx, job, logger, workDir, base)
	if !att.outcome.Succeeded {
		logger.Warn("streaming attempt failed", map[string]any{
			"category": att.category,
			"reason":   att.outcome.Reason,
		})
		att = s.runFallback(ctx, job, logger, workDir, base, att.outcome.MediaPath)
		if !att.outcome.Succeeded {
			return s.fail(ctx, job, result, start, CategoryFallbackFailed,
				att.outcome.Reason, string(types.PathFallback))
		}
	}
	outcome := att.outcome
	result.ProcessingMode = string(outcome.Path)
	result.ChunksProcessed = outcome.ChunkCount()
	result.TranscriptChars = len(outcome.TranscriptText())

	s.report(ctx, job, types.StatusUploading, string(outcome.Path), "")
	subtitlePath := filepath.Join(workDir, base+".srt")
	wroteSubs, err := transcribe.WriteSRT(subtitlePath, outcome.AllSegments())
	if err != nil {
		logger.Warn("subtitle rendering failed", map[string]any{"error": err.Error()})
	}
	if !wroteSubs {
		subtitlePath = ""
	}

	commitRes := s.committer.Commit(ctx, &types.CommitBundle{
		Job:             job,
		Probe:           probe,
		MediaPath:       outcome.MediaPath,
		TranscriptText:  outcome.TranscriptText(),
		SubtitlePath:    subtitlePath,
		Collection:      s.cfg.Collection,
		ParentFolderID:  s.cfg.ParentFolderID,
		FolderName:      base,
		Mode:            outcome.Path,
		ChunksProcessed: outcome.ChunkCount(),
	})
	result.MediaURL = commitRes.MediaURL
	result.TranscriptURL = commitRes.TranscriptURL
	result.SubtitleURL = commitRes.SubtitleURL
	result.FolderURL = commitRes.FolderURL
	result.RecordURL = commitRes.RecordURL
	if !commitRes.Complete {
		reason := fmt.Sprintf("commit stopped at %s: %s", commitRes.FailedStep, commitRes.Reason)
		return s.fail(ctx, job, result, start, CategoryPartialCommit, reason, string(outcome.Path))
	}

	result.Status = "success"
	result.DurationMs = time.Since(start).Milliseconds()
	s.metrics.JobSucceeded()
	s.report(ctx, job, types.StatusComplete, string(outcome.Path), "")
	logger.Info("job complete", map[string]any{
		"mode":        result.ProcessingMode,
		"chunks":      result.ChunksProcessed,
		"duration_ms": result.DurationMs,
	})
	return result
}

// runStreaming executes the streaming path: live capture with
// incremental transcription. The session is stopped before this method
// returns, whatever happened — the stop-before-fallback invariant.
func (s *Supervisor) runStreaming(ctx context.Context, job *types.JobDescriptor, logger *log.Logger, workDir, base string) attempt {
	s.metrics.StreamingAttempt()
	s.report(ctx, job, types.StatusDownloading, string(types.PathStreaming), "")

	archivalPath := filepath.Join(workDir, base+".mkv")
	sess, err := s.startSession(ctx, s.cfg.Capture, job.SourceURL, archivalPath)
	if err != nil {
		return attempt{
			outcome: &types.AttemptOutcome{
				Path:      types.PathStreaming,
				MediaPath: archivalPath,
				Reason:    err.Error(),
			},
			category: classifyAttemptError(err),
		}
	}
	defer sess.Stop()

	s.report(ctx, job, types.StatusTranscribing, string(types.PathStreaming), "")
	acc, err := s.incremental.Run(ctx, sess, func(pr *types.PartialResult) {
		s.metrics.ChunkTranscribed()
		s.metrics.BytesCaptured(int64(pr.Duration * float64(s.audioBytesPerSecond())))
	})
	sess.Stop()

	if err != nil {
		reason := err.Error()
		if diags := sess.DrainErrors(); len(diags) > 0 {
			reason = fmt.Sprintf("%s (%s)", reason, strings.Join(diags, "; "))
		}
		return attempt{
			outcome: &types.AttemptOutcome{
				Path:      types.PathStreaming,
				MediaPath: archivalPath,
				Reason:    reason,
			},
			category: classifyAttemptError(err),
		}
	}
	if !sess.Flushed() {
		return attempt{
			outcome: &types.AttemptOutcome{
				Path:      types.PathStreaming,
				MediaPath: archivalPath,
				Reason:    "capture ended without a flushed archival file",
			},
			category: CategoryIncomplete,
		}
	}

	logger.Info("streaming attempt succeeded", map[string]any{
		"chunks":      acc.ChunksProcessed,
		"covered_sec": acc.DurationCovered,
	})
	return attempt{outcome: &types.AttemptOutcome{
		Path:       types.PathStreaming,
		Succeeded:  true,
		MediaPath:  archivalPath,
		Transcript: acc,
	}}
}

// runFallback executes the two-phase recovery path from scratch. Any
// partial archival file from the streaming attempt is deleted first so
// the fallback never publishes a possibly corrupt container.
func (s *Supervisor) runFallback(ctx context.Context, job *types.JobDescriptor, logger *log.Logger, workDir, base, partialMedia string) attempt {
	s.metrics.FallbackAttempt()
	if partialMedia != "" {
		_ = os.Remove(partialMedia)
	}

	s.report(ctx, job, types.StatusDownloading, string(types.PathFallback), "")
	mediaPath := filepath.Join(workDir, base+".mp4")
	if err := s.fallback.Download(ctx, job.SourceURL, mediaPath); err != nil {
		return attempt{
			outcome:  &types.AttemptOutcome{Path: types.PathFallback, Reason: err.Error()},
			category: CategoryFallbackFailed,
		}
	}

	s.report(ctx, job, types.StatusTranscribing, string(types.PathFallback), "")
	text, segments, err := s.fallback.TranscribeFile(ctx, mediaPath)
	if err != nil {
		return attempt{
			outcome:  &types.AttemptOutcome{Path: types.PathFallback, Reason: err.Error()},
			category: CategoryFallbackFailed,
		}
	}

	logger.Info("fallback attempt succeeded", map[string]any{
		"transcript_chars": len(text),
	})
	return attempt{outcome: &types.AttemptOutcome{
		Path:      types.PathFallback,
		Succeeded: true,
		MediaPath: mediaPath,
		Text:      text,
		Segments:  segments,
	}}
}

func (s *Supervisor) fail(ctx context.Context, job *types.JobDescriptor, result *types.JobResult, start time.Time, category, message, mode string) *types.JobResult {
	result.Status = "error"
	result.ErrorCategory = category
	result.ErrorMessage = message
	if mode != "" {
		result.ProcessingMode = mode
	}
	result.DurationMs = time.Since(start).Milliseconds()
	s.metrics.JobFailed()
	s.report(ctx, job, types.StatusError, mode, message)
	return result
}

// report mirrors one state transition to the status sink, best-effort.
func (s *Supervisor) report(ctx context.Context, job *types.JobDescriptor, st types.Status, mode, message string) {
	s.reporter.Report(ctx, &types.StatusRecord{
		JobID:          job.JobID,
		SourceRecordID: job.SourceRecordID,
		Status:         st,
		Mode:           mode,
		Message:        message,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Supervisor) audioBytesPerSecond() int {
	rate := s.cfg.Capture.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return rate * audio.BytesPerFrame
}
