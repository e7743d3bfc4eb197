package types

// Status is the externally visible processing stage, mirrored to the
// status sink at each supervisor state transition.
type Status string

// Status constants. These are the only states the pipeline is required
// to make observable outside its own process.
const (
	StatusProcessing   Status = "processing"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusUploading    Status = "uploading"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// IsTerminal returns true if no further status transition follows.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// Valid returns true for a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusDownloading, StatusTranscribing,
		StatusUploading, StatusComplete, StatusError:
		return true
	}
	return false
}

// StatusRecord is one stage-transition notification sent to the status sink.
type StatusRecord struct {
	// JobID identifies the job the transition belongs to.
	JobID string `json:"job_id"`
	// SourceRecordID is the originating record to annotate, when known.
	SourceRecordID string `json:"source_record_id,omitempty"`
	// Status is the stage entered.
	Status Status `json:"status"`
	// Mode is "streaming" or "fallback" once the path is known.
	Mode string `json:"mode,omitempty"`
	// Message carries the human-readable error description for
	// StatusError transitions.
	Message string `json:"message,omitempty"`
	// Timestamp is the transition time in ISO 8601 UTC format.
	Timestamp string `json:"timestamp"`
}
