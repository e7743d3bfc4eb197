package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveConfig holds configuration for the Drive artifact store.
type DriveConfig struct {
	// CredentialsFile is a service account JSON key path. Ignored when
	// TokenSource is set.
	CredentialsFile string
	// TokenSource supplies OAuth tokens directly (tests, delegated auth).
	TokenSource oauth2.TokenSource
}

// driveAPI is the subset of Drive calls the store issues.
// A thin seam so tests do not need a live service.
type driveAPI interface {
	findFolder(ctx context.Context, parentID, name string) (*drive.File, error)
	createFolder(ctx context.Context, parentID, name string) (*drive.File, error)
	createFile(ctx context.Context, meta *drive.File, media io.Reader, contentType string) (*drive.File, error)
}

// DriveStore publishes artifacts into a per-job Drive folder.
type DriveStore struct {
	api driveAPI
}

// NewDriveStore creates a Drive artifact store.
func NewDriveStore(ctx context.Context, cfg DriveConfig) (*DriveStore, error) {
	var opts []option.ClientOption
	switch {
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, errors.New("drive store: credentials file or token source required")
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive store: %w", err)
	}
	return &DriveStore{api: &driveService{svc: svc}}, nil
}

// newDriveStoreWithAPI is the test seam.
func newDriveStoreWithAPI(api driveAPI) *DriveStore {
	return &DriveStore{api: api}
}

// EnsureFolder finds or creates the named folder under parentID.
func (d *DriveStore) EnsureFolder(ctx context.Context, parentID, name string) (*Folder, error) {
	existing, err := d.api.findFolder(ctx, parentID, name)
	if err != nil {
		return nil, wrapErr("ensure_folder", name, err)
	}
	if existing == nil {
		existing, err = d.api.createFolder(ctx, parentID, name)
		if err != nil {
			return nil, wrapErr("ensure_folder", name, err)
		}
	}
	return &Folder{ID: existing.Id, URL: existing.WebViewLink}, nil
}

// Upload streams one artifact into the folder.
func (d *DriveStore) Upload(ctx context.Context, folder *Folder, name, contentType string, r io.Reader) (*Artifact, error) {
	meta := &drive.File{
		Name:    name,
		Parents: []string{folder.ID},
	}
	created, err := d.api.createFile(ctx, meta, r, contentType)
	if err != nil {
		return nil, wrapErr("upload", name, err)
	}
	return &Artifact{ID: created.Id, URL: created.WebViewLink}, nil
}

// driveService adapts *drive.Service to the driveAPI seam.
type driveService struct {
	svc *drive.Service
}

func (s *driveService) findFolder(ctx context.Context, parentID, name string) (*drive.File, error) {
	query := fmt.Sprintf(
		"name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), parentID, folderMimeType)
	list, err := s.svc.Files.List().
		Context(ctx).
		Q(query).
		PageSize(1).
		Fields("files(id, webViewLink)").
		Do()
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

func (s *driveService) createFolder(ctx context.Context, parentID, name string) (*drive.File, error) {
	return s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id, webViewLink").Do()
}

func (s *driveService) createFile(ctx context.Context, meta *drive.File, media io.Reader, contentType string) (*drive.File, error) {
	call := s.svc.Files.Create(meta).Context(ctx).Fields("id, webViewLink")
	if contentType != "" {
		call = call.Media(media, googleapi.ContentType(contentType))
	} else {
		call = call.Media(media)
	}
	return call.Do()
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
