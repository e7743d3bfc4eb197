package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RecordAPIConfig holds configuration for the HTTP record store.
type RecordAPIConfig struct {
	// BaseURL is the record API root, e.g. "https://records.internal/v1".
	BaseURL string
	// Token is the bearer token for the API.
	Token string
	// Timeout bounds each request (default 30s).
	Timeout time.Duration
}

// HTTPRecordStore talks to the record API over JSON. Destination
// records land in a collection; source records are patched in place.
type HTTPRecordStore struct {
	cfg    RecordAPIConfig
	client *http.Client
}

// NewHTTPRecordStore creates a record store client.
func NewHTTPRecordStore(cfg RecordAPIConfig) (*HTTPRecordStore, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("record store: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &HTTPRecordStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type recordResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateDestinationRecord writes the destination record and returns its
// identifier and locator.
func (s *HTTPRecordStore) CreateDestinationRecord(ctx context.Context, rec *DestinationRecord) (string, string, error) {
	body := map[string]any{
		"title":              rec.Title,
		"source_url":         rec.SourceURL,
		"channel":            rec.Channel,
		"upload_date":        rec.UploadDate,
		"duration_sec":       rec.DurationSec,
		"processing_mode":    rec.ProcessingMode,
		"chunks_processed":   rec.ChunksProcessed,
		"transcript_preview": rec.TranscriptPreview,
		"media_url":          rec.MediaURL,
		"transcript_url":     rec.TranscriptURL,
		"folder_url":         rec.FolderURL,
	}
	target := fmt.Sprintf("%s/collections/%s/records", s.cfg.BaseURL, rec.Collection)
	var resp recordResponse
	if err := s.do(ctx, http.MethodPost, target, body, &resp); err != nil {
		return "", "", wrapErr("create_record", rec.Collection, err)
	}
	return resp.ID, resp.URL, nil
}

// UpdateSourceRecord patches the originating record with the outcome.
func (s *HTTPRecordStore) UpdateSourceRecord(ctx context.Context, sourceRecordID string, patch *SourcePatch) error {
	body := map[string]any{
		"status":          patch.Status,
		"dest_record_url": patch.DestRecordURL,
		"folder_url":      patch.FolderURL,
	}
	target := fmt.Sprintf("%s/records/%s", s.cfg.BaseURL, sourceRecordID)
	if err := s.do(ctx, http.MethodPatch, target, body, nil); err != nil {
		return wrapErr("update_record", sourceRecordID, err)
	}
	return nil
}

func (s *HTTPRecordStore) do(ctx context.Context, method, target string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("record API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding record API response: %w", err)
		}
	}
	return nil
}
