package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	puts []s3.PutObjectInput
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, *params)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreKeyLayout(t *testing.T) {
	fake := &fakeS3{}
	s := newS3StoreWithClient(fake, S3Config{Bucket: "captures", Prefix: "capstan", Region: "us-east-1"})

	ctx := context.Background()
	folder, err := s.EnsureFolder(ctx, "podcasts", "2026-08-15 - Weekly Sync")
	if err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	if folder.ID != "capstan/podcasts/2026-08-15 - Weekly Sync" {
		t.Fatalf("folder ID = %q", folder.ID)
	}

	art, err := s.Upload(ctx, folder, "media.mkv", "video/x-matroska", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("puts = %d", len(fake.puts))
	}
	put := fake.puts[0]
	if *put.Bucket != "captures" {
		t.Errorf("bucket = %q", *put.Bucket)
	}
	if *put.Key != "capstan/podcasts/2026-08-15 - Weekly Sync/media.mkv" {
		t.Errorf("key = %q", *put.Key)
	}
	if *put.ContentType != "video/x-matroska" {
		t.Errorf("content type = %q", *put.ContentType)
	}
	body, _ := io.ReadAll(put.Body)
	if string(body) != "bytes" {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(art.URL, "captures.s3.us-east-1.amazonaws.com") {
		t.Errorf("artifact URL = %q", art.URL)
	}
}

func TestS3StoreUploadErrorClassified(t *testing.T) {
	fake := &fakeS3{err: errors.New("api error AccessDenied: forbidden")}
	s := newS3StoreWithClient(fake, S3Config{Bucket: "captures"})

	folder, _ := s.EnsureFolder(context.Background(), "", "job")
	_, err := s.Upload(context.Background(), folder, "x.txt", "", strings.NewReader("x"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestS3ConfigValidate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty bucket must not validate")
	}
}
