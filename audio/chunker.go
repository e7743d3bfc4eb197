// Package audio provides PCM chunk accumulation for transcription.
//
// The pipeline's audio contract is fixed: mono, 16-bit little-endian
// signed samples at a configured rate. The Chunker slices that byte
// stream into duration-bounded chunks without ever splitting a sample
// frame, so no sample is duplicated or dropped across chunk boundaries.
package audio

import (
	"fmt"
	"time"
)

// Default audio format constants. 16 kHz mono s16le is what the remux
// stage is asked to produce and what speech engines expect.
const (
	DefaultSampleRate = 16000
	BytesPerFrame     = 2 // mono, 16-bit samples
)

// Default chunking thresholds.
const (
	DefaultChunkDuration   = 30 * time.Second
	DefaultMinTailDuration = 5 * time.Second
)

// ChunkerConfig configures a Chunker.
type ChunkerConfig struct {
	// SampleRate is the PCM sample rate in Hz (default 16000).
	SampleRate int
	// ChunkDuration is the target duration per emitted chunk (default 30s).
	ChunkDuration time.Duration
	// MinTailDuration is the minimum duration for the final short chunk.
	// Tail audio below this threshold is discarded rather than emitted
	// (too little signal for a reliable transcription).
	MinTailDuration time.Duration
}

// Chunk is one bounded buffer of raw PCM samples plus its nominal
// position in the stream. Consumed and discarded once transcribed.
type Chunk struct {
	// Index is the zero-based chunk position in the stream.
	Index int
	// StartOffset is the chunk's start time in seconds from stream start.
	StartOffset float64
	// Data is the raw s16le sample payload. Always a whole number of frames.
	Data []byte
	// SampleRate is the PCM sample rate the payload was captured at.
	SampleRate int
}

// Duration returns the chunk's audio duration in seconds.
func (c *Chunk) Duration() float64 {
	return float64(len(c.Data)) / float64(c.SampleRate*BytesPerFrame)
}

// Chunker accumulates a raw PCM byte stream into duration-bounded,
// frame-aligned chunks. Not safe for concurrent use; the incremental
// transcriber drives it from a single control flow.
type Chunker struct {
	cfg ChunkerConfig

	buf       []byte
	nextIndex int
	// consumed counts bytes already emitted in chunks, used to place
	// each chunk's start offset.
	consumed int64
}

// NewChunker creates a Chunker, applying defaults for zero fields.
// Returns an error if the configured thresholds are inverted.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.MinTailDuration <= 0 {
		cfg.MinTailDuration = DefaultMinTailDuration
	}
	if cfg.MinTailDuration > cfg.ChunkDuration {
		return nil, fmt.Errorf("min tail duration %v exceeds chunk duration %v",
			cfg.MinTailDuration, cfg.ChunkDuration)
	}
	return &Chunker{cfg: cfg}, nil
}

// targetBytes is the emitted chunk payload size. Frame-aligned by
// construction: rate * frame size * whole-or-fractional seconds, rounded
// down to a whole frame.
func (c *Chunker) targetBytes() int {
	bytesPerSec := c.cfg.SampleRate * BytesPerFrame
	n := int(c.cfg.ChunkDuration.Seconds() * float64(bytesPerSec))
	return n - n%BytesPerFrame
}

func (c *Chunker) minTailBytes() int {
	bytesPerSec := c.cfg.SampleRate * BytesPerFrame
	n := int(c.cfg.MinTailDuration.Seconds() * float64(bytesPerSec))
	return n - n%BytesPerFrame
}

// Write pushes raw bytes into the buffer and returns any chunks that
// became complete. Fractional frames at the target boundary are carried
// forward into the next chunk, never split.
func (c *Chunker) Write(p []byte) []*Chunk {
	c.buf = append(c.buf, p...)

	target := c.targetBytes()
	var out []*Chunk
	for len(c.buf) >= target {
		data := make([]byte, target)
		copy(data, c.buf[:target])
		c.buf = c.buf[target:]
		out = append(out, c.emit(data))
	}
	return out
}

// Flush terminates the stream. It returns the final short chunk if the
// remaining tail meets the minimum duration, and the bytes discarded
// otherwise (including any dangling partial frame, which is truncated
// off regardless). After Flush the chunker holds no buffered audio.
func (c *Chunker) Flush() (tail *Chunk, discarded []byte) {
	rem := c.buf
	c.buf = nil

	whole := len(rem) - len(rem)%BytesPerFrame
	frames, ragged := rem[:whole], rem[whole:]

	if len(frames) >= c.minTailBytes() && len(frames) > 0 {
		tail = c.emit(frames)
		return tail, ragged
	}
	return nil, rem
}

// Buffered returns the number of bytes currently held back.
func (c *Chunker) Buffered() int {
	return len(c.buf)
}

func (c *Chunker) emit(data []byte) *Chunk {
	ch := &Chunk{
		Index:       c.nextIndex,
		StartOffset: float64(c.consumed) / float64(c.cfg.SampleRate*BytesPerFrame),
		Data:        data,
		SampleRate:  c.cfg.SampleRate,
	}
	c.nextIndex++
	c.consumed += int64(len(data))
	return ch
}
