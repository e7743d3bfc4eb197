// Package transcribe turns captured audio into transcript text. The
// incremental path consumes a live capture session chunk by chunk; the
// fallback path decodes an already-downloaded media file in one sweep.
package transcribe

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/soundline-io/capstan/audio"
	"github.com/soundline-io/capstan/engine"
	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/types"
)

// Defaults for the incremental transcriber.
const (
	DefaultReadTimeout    = 60 * time.Second
	DefaultAttemptTimeout = 4 * time.Hour
)

// AudioSource yields raw PCM blocks until io.EOF or a terminal error.
// *capture.Session satisfies it.
type AudioSource interface {
	ReadAudio(timeout time.Duration) ([]byte, error)
}

// Config configures an incremental transcription run.
type Config struct {
	// ReadTimeout bounds each audio read; the source reports a stall
	// when it elapses without data (default 60s).
	ReadTimeout time.Duration
	// AttemptTimeout bounds the whole streaming attempt (default 4h).
	AttemptTimeout time.Duration
	// Chunker sets the chunk and tail thresholds.
	Chunker audio.ChunkerConfig
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

// Incremental drives chunked transcription over a live audio source.
// Reading and transcribing overlap: a single-slot handoff lets the next
// chunk fill while the engine works on the current one, and applies
// backpressure when the engine falls behind.
type Incremental struct {
	cfg     Config
	adapter *engine.Adapter
	logger  *log.Logger
}

// NewIncremental creates an incremental transcriber over the engine.
// logger may be nil.
func NewIncremental(eng engine.Engine, cfg Config, logger *log.Logger) *Incremental {
	cfg.applyDefaults()
	return &Incremental{
		cfg:     cfg,
		adapter: engine.NewAdapter(eng),
		logger:  logger,
	}
}

// Run consumes src to end of stream, transcribing chunks as they fill,
// and returns the accumulated transcript. onPartial, when non-nil, is
// invoked after each chunk in stream order. Any failure abandons the
// attempt: source errors pass through unchanged, engine failures arrive
// as *engine.Error, and a blown attempt deadline as
// *AttemptTimeoutError.
func (t *Incremental) Run(ctx context.Context, src AudioSource, onPartial func(*types.PartialResult)) (*types.TranscriptAccumulator, error) {
	chunker, err := audio.NewChunker(t.cfg.Chunker)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.AttemptTimeout)
	defer cancel()

	acc := &types.TranscriptAccumulator{}
	chunks := make(chan *audio.Chunk, 1)
	workerDone := make(chan error, 1)

	go func() {
		err := t.transcribeAll(runCtx, chunks, acc, onPartial)
		if err != nil {
			cancel()
		}
		workerDone <- err
	}()

	feedErr := t.feed(runCtx, src, chunker, chunks)
	if feedErr != nil {
		cancel()
	}
	close(chunks)
	workerErr := <-workerDone

	if err := firstMaterial(workerErr, feedErr); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &AttemptTimeoutError{Timeout: t.cfg.AttemptTimeout}
		}
		return nil, err
	}
	return acc, nil
}

// firstMaterial prefers a real failure over the cancellation noise the
// other half of the pipeline reports once one side has already failed.
func firstMaterial(errs ...error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// feed pulls audio from the source into the chunker and hands filled
// chunks to the transcription worker. Returns nil on clean end of
// stream, after flushing any qualifying tail chunk.
func (t *Incremental) feed(ctx context.Context, src AudioSource, chunker *audio.Chunker, out chan<- *audio.Chunk) error {
	send := func(ch *audio.Chunk) error {
		select {
		case out <- ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := src.ReadAudio(t.cfg.ReadTimeout)
		for _, ch := range chunker.Write(data) {
			if sendErr := send(ch); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			tail, discarded := chunker.Flush()
			if tail != nil {
				if sendErr := send(tail); sendErr != nil {
					return sendErr
				}
			}
			if len(discarded) > 0 && t.logger != nil {
				t.logger.Debug("discarded sub-threshold tail", map[string]any{
					"bytes": len(discarded),
				})
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *Incremental) transcribeAll(ctx context.Context, in <-chan *audio.Chunk, acc *types.TranscriptAccumulator, onPartial func(*types.PartialResult)) error {
	for ch := range in {
		pr, err := t.adapter.Transcribe(ctx, ch)
		if err != nil {
			return err
		}
		acc.Append(pr)
		if t.logger != nil {
			t.logger.Debug("chunk transcribed", map[string]any{
				"chunk_index": pr.ChunkIndex,
				"offset_sec":  pr.StartOffset,
				"chars":       len(pr.Text),
			})
		}
		if onPartial != nil {
			onPartial(pr)
		}
	}
	return nil
}
