package types

// CommitBundle is the set of artifacts to publish plus the destination
// routing resolved from the job descriptor. Built once per job and
// consumed exactly once by the commit coordinator.
type CommitBundle struct {
	// Job is the descriptor the bundle was built for.
	Job *JobDescriptor
	// Probe is the source metadata used for naming and record fields.
	Probe *SourceProbe
	// MediaPath is the local archival media file to upload.
	// Empty if the attempt produced no media artifact.
	MediaPath string
	// TranscriptText is the full transcript to publish.
	TranscriptText string
	// SubtitlePath is the local subtitle/index file to upload, if any.
	SubtitlePath string
	// Collection is the destination record collection, resolved from
	// the routing key.
	Collection string
	// ParentFolderID is the resolved parent storage location.
	ParentFolderID string
	// FolderName is the per-job destination folder name.
	FolderName string
	// Mode is the processing path that produced the artifacts.
	Mode AttemptPath
	// ChunksProcessed is carried through to the destination record.
	ChunksProcessed int
}

// CommitStep names one step of the ordered publish sequence.
type CommitStep string

// Commit steps, in execution order.
const (
	StepUploadMedia        CommitStep = "upload_media"
	StepUploadTranscript   CommitStep = "upload_transcript"
	StepUploadSubtitle     CommitStep = "upload_subtitle"
	StepWriteDestRecord    CommitStep = "write_destination_record"
	StepUpdateSourceRecord CommitStep = "update_source_record"
)

// CommitResult reports what the commit coordinator accomplished.
// A fully successful commit has Complete == true and empty FailedStep.
type CommitResult struct {
	// Complete is true when every step finished.
	Complete bool
	// CompletedSteps lists the steps that finished, in order.
	CompletedSteps []CommitStep
	// FailedStep is the step that exhausted its retries, if any.
	FailedStep CommitStep
	// Reason describes the failing step's last error.
	Reason string
	// MediaURL is the published media locator.
	MediaURL string
	// TranscriptURL is the published transcript locator.
	TranscriptURL string
	// SubtitleURL is the published subtitle locator.
	SubtitleURL string
	// FolderURL is the destination folder locator.
	FolderURL string
	// RecordURL is the destination record locator.
	RecordURL string
	// RecordID is the destination record identifier.
	RecordID string
}
