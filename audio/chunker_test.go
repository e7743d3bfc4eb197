package audio_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/soundline-io/capstan/audio"
)

// test rate keeps chunk payloads small: 100 Hz * 2 bytes = 200 B/s.
const testRate = 100

func mustNewChunker(t *testing.T, cfg audio.ChunkerConfig) *audio.Chunker {
	t.Helper()
	c, err := audio.NewChunker(cfg)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	return c
}

// pcm returns a deterministic byte pattern of length n.
func pcm(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func secs(d time.Duration) int {
	return int(d.Seconds()) * testRate * audio.BytesPerFrame
}

func TestChunker_InvalidThresholds(t *testing.T) {
	_, err := audio.NewChunker(audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   5 * time.Second,
		MinTailDuration: 30 * time.Second,
	})
	if err == nil {
		t.Fatal("expected error for min tail > chunk duration")
	}
}

func TestChunker_EmitsAtTargetDuration(t *testing.T) {
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   30 * time.Second,
		MinTailDuration: 5 * time.Second,
	})

	// 29s: nothing emitted yet
	chunks := c.Write(pcm(secs(29 * time.Second)))
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks below target, got %d", len(chunks))
	}

	// +2s crosses 30s: one chunk, 1s carried forward
	chunks = c.Write(pcm(secs(2 * time.Second)))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if got := chunks[0].Duration(); got != 30 {
		t.Errorf("chunk duration = %v, want 30", got)
	}
	if c.Buffered() != secs(1*time.Second) {
		t.Errorf("buffered = %d, want %d", c.Buffered(), secs(1*time.Second))
	}
}

func TestChunker_LargeWriteEmitsMultiple(t *testing.T) {
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   30 * time.Second,
		MinTailDuration: 5 * time.Second,
	})

	chunks := c.Write(pcm(secs(95 * time.Second)))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks from 95s write, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.StartOffset != float64(i*30) {
			t.Errorf("chunk %d start offset = %v", i, ch.StartOffset)
		}
	}
}

func TestChunker_TailEmittedAtThreshold(t *testing.T) {
	// 95s stream, 30s chunks, 5s min tail: 4 chunks of 30,30,30,5.
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   30 * time.Second,
		MinTailDuration: 5 * time.Second,
	})
	chunks := c.Write(pcm(secs(95 * time.Second)))
	tail, discarded := c.Flush()
	if tail == nil {
		t.Fatal("expected tail chunk at exactly min duration")
	}
	if tail.Duration() != 5 {
		t.Errorf("tail duration = %v, want 5", tail.Duration())
	}
	if tail.Index != len(chunks) {
		t.Errorf("tail index = %d, want %d", tail.Index, len(chunks))
	}
	if tail.StartOffset != 90 {
		t.Errorf("tail start offset = %v, want 90", tail.StartOffset)
	}
	if len(discarded) != 0 {
		t.Errorf("unexpected discard of %d bytes", len(discarded))
	}
}

func TestChunker_ShortTailDiscarded(t *testing.T) {
	// 92s stream: 3 chunks, 2s tail discarded.
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   30 * time.Second,
		MinTailDuration: 5 * time.Second,
	})
	chunks := c.Write(pcm(secs(92 * time.Second)))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	tail, discarded := c.Flush()
	if tail != nil {
		t.Fatalf("expected no tail chunk, got %v seconds", tail.Duration())
	}
	if len(discarded) != secs(2*time.Second) {
		t.Errorf("discarded %d bytes, want %d", len(discarded), secs(2*time.Second))
	}
}

func TestChunker_ByteExactReassembly(t *testing.T) {
	// Concatenating all chunk payloads plus the discarded tail must
	// reproduce the input exactly, regardless of write sizes.
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   30 * time.Second,
		MinTailDuration: 5 * time.Second,
	})

	input := pcm(secs(92*time.Second) + 1) // odd length: dangling half frame
	var emitted []byte
	for lo := 0; lo < len(input); lo += 777 {
		hi := min(lo+777, len(input))
		for _, ch := range c.Write(input[lo:hi]) {
			emitted = append(emitted, ch.Data...)
		}
	}
	tail, discarded := c.Flush()
	if tail != nil {
		emitted = append(emitted, tail.Data...)
	}
	emitted = append(emitted, discarded...)

	if !bytes.Equal(emitted, input) {
		t.Fatalf("reassembled stream differs: got %d bytes, want %d", len(emitted), len(input))
	}
	if c.Buffered() != 0 {
		t.Errorf("chunker still holds %d bytes after Flush", c.Buffered())
	}
}

func TestChunker_OddWriteNeverSplitsFrame(t *testing.T) {
	c := mustNewChunker(t, audio.ChunkerConfig{
		SampleRate:      testRate,
		ChunkDuration:   time.Second,
		MinTailDuration: time.Second,
	})

	var all []*audio.Chunk
	for range 1000 {
		all = append(all, c.Write(pcm(3))...) // odd write size
	}
	for _, ch := range all {
		if len(ch.Data)%audio.BytesPerFrame != 0 {
			t.Fatalf("chunk %d payload %d bytes is not frame aligned", ch.Index, len(ch.Data))
		}
	}
}

func TestRenderWAV_Header(t *testing.T) {
	samples := pcm(400)
	wav := audio.RenderWAV(samples, testRate)

	if len(wav) != 44+len(samples) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(samples))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if !bytes.Equal(wav[44:], samples) {
		t.Error("payload not preserved")
	}
}
