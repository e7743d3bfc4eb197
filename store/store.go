// Package store holds the artifact and record storage drivers the
// commit coordinator publishes through. Artifact stores put files into
// a per-job destination folder; record stores write the destination
// record and link it back to the originating source record.
package store

import (
	"context"
	"io"
)

// Folder is a resolved destination folder in an artifact store.
type Folder struct {
	// ID is the driver-native folder identifier (Drive file ID, S3 key
	// prefix, local directory path).
	ID string
	// URL is a human-visitable locator for the folder, when the driver
	// has one.
	URL string
}

// Artifact is one published file.
type Artifact struct {
	ID  string
	URL string
}

// ArtifactStore publishes job artifacts into a destination folder.
type ArtifactStore interface {
	// EnsureFolder resolves or creates the named folder under parentID.
	// Calling it again with the same arguments returns the same folder.
	EnsureFolder(ctx context.Context, parentID, name string) (*Folder, error)
	// Upload writes one artifact into the folder. contentType may be
	// empty; drivers that need one fall back to octet-stream.
	Upload(ctx context.Context, folder *Folder, name, contentType string, r io.Reader) (*Artifact, error)
}

// DestinationRecord is the record written for a completed job.
type DestinationRecord struct {
	Collection      string
	Title           string
	SourceURL       string
	Channel         string
	UploadDate      string
	DurationSec     float64
	ProcessingMode  string
	ChunksProcessed int
	// TranscriptPreview is the truncated transcript for the record
	// body; the full text lives in the uploaded artifact.
	TranscriptPreview string
	MediaURL          string
	TranscriptURL     string
	FolderURL         string
}

// SourcePatch is the update applied to the originating record after a
// successful commit.
type SourcePatch struct {
	Status        string
	DestRecordURL string
	FolderURL     string
}

// RecordStore writes destination records and updates source records.
type RecordStore interface {
	CreateDestinationRecord(ctx context.Context, rec *DestinationRecord) (id, url string, err error)
	UpdateSourceRecord(ctx context.Context, sourceRecordID string, patch *SourcePatch) error
}
