// Package types defines core domain types for the Capstan pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// JobDescriptor identifies one unit of work handed to the pipeline by the
// external job runner. It is read-only for the lifetime of an attempt.
type JobDescriptor struct {
	// JobID is the runner-assigned job identifier. If empty, one is
	// generated at validation time.
	JobID string `json:"job_id" yaml:"job_id"`
	// SourceURL is the remote media source locator.
	SourceURL string `json:"source_url" yaml:"source_url"`
	// RoutingKey classifies the job for destination resolution
	// (which record collection and which storage folder it lands in).
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	// SourceRecordID is the identifier of the originating record in the
	// record store, updated at commit time with a link to the destination.
	SourceRecordID string `json:"source_record_id" yaml:"source_record_id"`
	// ParentFolderID optionally overrides the routing-key-configured
	// parent storage folder.
	ParentFolderID string `json:"parent_folder_id,omitempty" yaml:"parent_folder_id,omitempty"`
	// Attempt is the runner-level attempt number, starts at 1.
	Attempt int `json:"attempt" yaml:"attempt"`
}

// Validate checks required fields and fills defaults.
// A missing JobID is generated; Attempt defaults to 1.
func (j *JobDescriptor) Validate() error {
	if j.SourceURL == "" {
		return errors.New("job descriptor: source_url is required")
	}
	if j.RoutingKey == "" {
		return errors.New("job descriptor: routing_key is required")
	}
	if j.JobID == "" {
		j.JobID = uuid.NewString()
	}
	if j.Attempt < 1 {
		j.Attempt = 1
	}
	return nil
}

// SourceProbe is the metadata returned by probing the source locator
// before capture begins. It feeds artifact naming and record fields.
type SourceProbe struct {
	// Title is the source's display title.
	Title string `json:"title"`
	// UploadDate is the source publication date, formatted YYYY-MM-DD.
	UploadDate string `json:"upload_date"`
	// DurationSec is the declared media duration in seconds.
	// Zero for live sources with no declared end.
	DurationSec float64 `json:"duration"`
	// Channel is the publishing channel or account name.
	Channel string `json:"channel"`
	// SourceID is the provider-native media identifier.
	SourceID string `json:"id"`
	// Availability is the provider's visibility classification
	// (e.g. "public", "unlisted").
	Availability string `json:"availability"`
}

// BaseName returns the canonical "date - title" artifact name stem,
// sanitized for use in file paths and object keys.
func (p *SourceProbe) BaseName() string {
	title := SanitizeName(p.Title)
	if title == "" {
		title = "untitled"
	}
	if p.UploadDate == "" {
		return title
	}
	return p.UploadDate + " - " + title
}

// SanitizeName strips characters that are unsafe in file names and
// object keys, collapsing runs of whitespace to single spaces.
func SanitizeName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		case strings.ContainsRune(`/\:*?"<>|`, r) || r < 0x20:
			// drop
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// JobResult is the structured outcome returned to the external job runner.
type JobResult struct {
	// JobID echoes the descriptor's job identifier.
	JobID string `json:"job_id"`
	// SourceURL echoes the descriptor's source locator.
	SourceURL string `json:"source_url"`
	// Status is "success" or "error".
	Status string `json:"status"`
	// ProcessingMode is "streaming" or "fallback".
	ProcessingMode string `json:"processing_mode"`
	// ChunksProcessed is the number of audio chunks transcribed.
	// Meaningful for streaming mode; zero when streaming never produced
	// a chunk.
	ChunksProcessed int `json:"chunks_processed"`
	// TranscriptChars is the length of the final transcript text.
	TranscriptChars int `json:"transcript_chars"`
	// MediaURL is the published archival media locator.
	MediaURL string `json:"media_url,omitempty"`
	// TranscriptURL is the published transcript locator.
	TranscriptURL string `json:"transcript_url,omitempty"`
	// SubtitleURL is the published subtitle locator, if one was produced.
	SubtitleURL string `json:"subtitle_url,omitempty"`
	// FolderURL is the destination folder locator.
	FolderURL string `json:"folder_url,omitempty"`
	// RecordURL is the destination record locator.
	RecordURL string `json:"record_url,omitempty"`
	// ErrorCategory classifies a failed job (e.g. "fallback_failed",
	// "partial_commit").
	ErrorCategory string `json:"error_category,omitempty"`
	// ErrorMessage is the human-readable failure description.
	ErrorMessage string `json:"error_message,omitempty"`
	// DurationMs is the wall-clock job duration.
	DurationMs int64 `json:"duration_ms"`
}
