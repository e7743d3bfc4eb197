package types

// AttemptPath identifies which processing path produced an outcome.
type AttemptPath string

// Attempt path constants.
const (
	PathStreaming AttemptPath = "streaming"
	PathFallback  AttemptPath = "fallback"
)

// AttemptOutcome is the tagged result of one supervisor attempt.
// Exactly one of the success payloads is populated, matching Path:
// streaming success carries the accumulator, fallback success carries
// the flat transcript. Failed outcomes carry Reason only.
type AttemptOutcome struct {
	// Path is the processing path this outcome belongs to.
	Path AttemptPath
	// Succeeded is true when the path completed and artifacts are ready.
	Succeeded bool
	// MediaPath is the local archival media file path on success.
	MediaPath string
	// Transcript is the accumulated streaming transcript
	// (streaming success only).
	Transcript *TranscriptAccumulator
	// Text is the whole-file transcript text (fallback success only).
	Text string
	// Segments are the fallback path's timestamped segments
	// (fallback success only).
	Segments []Segment
	// Reason describes the failure for unsuccessful outcomes.
	Reason string
}

// TranscriptText returns the transcript text regardless of path.
func (o *AttemptOutcome) TranscriptText() string {
	if o.Transcript != nil {
		return o.Transcript.Text()
	}
	return o.Text
}

// AllSegments returns the timestamped segments regardless of path.
func (o *AttemptOutcome) AllSegments() []Segment {
	if o.Transcript != nil {
		return o.Transcript.Segments()
	}
	return o.Segments
}

// ChunkCount returns the number of streaming chunks processed, zero for
// fallback outcomes.
func (o *AttemptOutcome) ChunkCount() int {
	if o.Transcript != nil {
		return o.Transcript.ChunksProcessed
	}
	return 0
}
