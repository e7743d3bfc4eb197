// Package engine wraps a speech-to-text engine call over one in-memory
// audio segment. Adapters are stateless per call; the engine itself is
// loaded once at worker startup and shared read-only across jobs.
package engine

import (
	"context"
	"fmt"

	"github.com/soundline-io/capstan/audio"
	"github.com/soundline-io/capstan/types"
)

// Result is one engine invocation's output: text plus timestamped
// segments relative to the submitted audio's own start.
type Result struct {
	Text     string
	Segments []types.Segment
}

// Engine is the speech-to-text collaborator boundary. Implementations
// accept one WAV-wrapped audio buffer and fixed decoding parameters.
// Calls are synchronous and are not retried here; a failed chunk aborts
// the whole streaming attempt.
type Engine interface {
	Transcribe(ctx context.Context, wav []byte) (*Result, error)
}

// Error wraps a failed engine invocation. The incremental transcriber
// surfaces it to the supervisor, which abandons the streaming attempt.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Adapter converts raw PCM chunks into engine submissions and rebases
// the engine's segment timestamps to stream offsets.
type Adapter struct {
	engine Engine
}

// NewAdapter creates an adapter over the given engine.
func NewAdapter(eng Engine) *Adapter {
	return &Adapter{engine: eng}
}

// Transcribe runs one chunk through the engine and returns its partial
// result. Segment timestamps come back chunk-relative and are shifted by
// the chunk's stream offset so the accumulated transcript indexes into
// the whole stream.
func (a *Adapter) Transcribe(ctx context.Context, chunk *audio.Chunk) (*types.PartialResult, error) {
	wav := audio.RenderWAV(chunk.Data, chunk.SampleRate)

	res, err := a.engine.Transcribe(ctx, wav)
	if err != nil {
		return nil, &Error{Err: err}
	}

	segments := make([]types.Segment, 0, len(res.Segments))
	for _, s := range res.Segments {
		segments = append(segments, types.Segment{
			Start: chunk.StartOffset + s.Start,
			End:   chunk.StartOffset + s.End,
			Text:  s.Text,
		})
	}

	return &types.PartialResult{
		ChunkIndex:  chunk.Index,
		Text:        res.Text,
		Segments:    segments,
		StartOffset: chunk.StartOffset,
		Duration:    chunk.Duration(),
	}, nil
}
