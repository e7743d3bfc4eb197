package types

// Segment is one timestamped span of transcribed speech.
// Start and End are offsets in seconds from the beginning of the stream.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// PartialResult is one chunk's transcription: its text, timestamped
// segments rebased to stream offsets, and the chunk's position in the
// stream. The sequence of PartialResults for an attempt is finite and is
// never restarted; a new attempt begins again at chunk index 0.
type PartialResult struct {
	// ChunkIndex is the zero-based position of the chunk in the stream.
	ChunkIndex int
	// Text is the chunk's transcribed text.
	Text string
	// Segments are the chunk's timestamped sub-segments, with Start/End
	// already offset by the chunk's stream position.
	Segments []Segment
	// StartOffset is the chunk's nominal start time in the stream, seconds.
	StartOffset float64
	// Duration is the chunk's audio duration in seconds.
	Duration float64
}

// TranscriptAccumulator collects PartialResults in stream order.
// It is owned by one attempt and mutated only by the incremental
// transcriber; the supervisor reads it once, at attempt end.
type TranscriptAccumulator struct {
	text     []byte
	segments []Segment

	// ChunksProcessed counts appended partial results.
	ChunksProcessed int
	// DurationCovered is the total audio duration appended, seconds.
	DurationCovered float64
}

// Append adds one partial result. Results must arrive in chunk order;
// the accumulator does not reorder.
func (a *TranscriptAccumulator) Append(pr *PartialResult) {
	if len(a.text) > 0 && pr.Text != "" && a.text[len(a.text)-1] != ' ' && pr.Text[0] != ' ' {
		a.text = append(a.text, ' ')
	}
	a.text = append(a.text, pr.Text...)
	a.segments = append(a.segments, pr.Segments...)
	a.ChunksProcessed++
	a.DurationCovered += pr.Duration
}

// Text returns the concatenated transcript text.
func (a *TranscriptAccumulator) Text() string {
	return string(a.text)
}

// Segments returns the accumulated timestamped segments in stream order.
// The returned slice is shared; callers must not mutate it.
func (a *TranscriptAccumulator) Segments() []Segment {
	return a.segments
}
