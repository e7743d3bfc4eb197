// Package cmd implements the capstan CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/soundline-io/capstan/audio"
	"github.com/soundline-io/capstan/capture"
	"github.com/soundline-io/capstan/cli/config"
	"github.com/soundline-io/capstan/commit"
	"github.com/soundline-io/capstan/engine"
	"github.com/soundline-io/capstan/log"
	"github.com/soundline-io/capstan/metrics"
	"github.com/soundline-io/capstan/pipeline"
	"github.com/soundline-io/capstan/status"
	redissink "github.com/soundline-io/capstan/status/redis"
	"github.com/soundline-io/capstan/status/webhook"
	"github.com/soundline-io/capstan/store"
	"github.com/soundline-io/capstan/transcribe"
	"github.com/soundline-io/capstan/types"
)

// Exit codes for `process`.
const (
	exitSuccess       = 0
	exitJobError      = 1
	exitPartialCommit = 2
	exitSetupError    = 3
)

// ProcessCommand returns the process command, the only command that
// executes work.
func ProcessCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Capture, transcribe, and commit one source (the only execution entrypoint)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to capstan.yaml",
				Value: "capstan.yaml",
			},
			&cli.StringFlag{
				Name:  "job",
				Usage: "Job descriptor as JSON (overrides individual flags)",
			},
			&cli.StringFlag{
				Name:  "source-url",
				Usage: "Remote media source locator",
			},
			&cli.StringFlag{
				Name:  "routing-key",
				Usage: "Destination routing key",
			},
			&cli.StringFlag{
				Name:  "job-id",
				Usage: "Runner-assigned job ID (generated when absent)",
			},
			&cli.StringFlag{
				Name:  "source-record-id",
				Usage: "Originating record to update at commit time",
			},
			&cli.StringFlag{
				Name:  "parent-folder-id",
				Usage: "Parent storage folder override",
			},
			&cli.IntFlag{
				Name:  "attempt",
				Usage: "Runner-level attempt number (starts at 1)",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: processAction,
	}
}

func processAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("loading config: %v", err), exitSetupError)
	}

	job, err := parseJob(c)
	if err != nil {
		return cli.Exit(err.Error(), exitSetupError)
	}
	if err := job.Validate(); err != nil {
		return cli.Exit(err.Error(), exitSetupError)
	}

	route, err := cfg.Resolve(job.RoutingKey, job.ParentFolderID)
	if err != nil {
		return cli.Exit(err.Error(), exitSetupError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	collector := metrics.NewCollector()
	logger := log.NewLogger(job)
	sugar := logger.Sugar()
	sugar.Infof("processing %s (routing key %s, attempt %d)", job.SourceURL, job.RoutingKey, job.Attempt)

	eng, err := buildEngine(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("building engine: %v", err), exitSetupError)
	}
	artifacts, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("building artifact store: %v", err), exitSetupError)
	}
	records, err := buildRecordStore(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("building record store: %v", err), exitSetupError)
	}
	sink, err := buildSink(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("building status sink: %v", err), exitSetupError)
	}
	reporter := status.NewReporter(sink, logger, collector)
	defer func() { _ = reporter.Close() }()

	committer := commit.New(artifacts, records, commit.Config{
		Retries:        cfg.Commit.Retries,
		InitialBackoff: cfg.Commit.InitialBackoff.Duration,
		PreviewChars:   cfg.Commit.PreviewChars,
	}, logger, collector)

	sup := pipeline.New(supervisorConfig(cfg, route), eng, committer, reporter, collector)

	result := sup.Process(ctx, job)
	sugar.Infof("job %s finished: status=%s mode=%s chunks=%d", result.JobID, result.Status, result.ProcessingMode, result.ChunksProcessed)

	if !c.Bool("quiet") {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering result: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(out))
	}

	switch {
	case result.Status == "success":
		return cli.Exit("", exitSuccess)
	case result.ErrorCategory == pipeline.CategoryPartialCommit:
		return cli.Exit("", exitPartialCommit)
	default:
		return cli.Exit("", exitJobError)
	}
}

// parseJob builds the job descriptor from --job JSON or the individual
// flags. Flags override fields present in the JSON payload.
func parseJob(c *cli.Context) (*types.JobDescriptor, error) {
	job := &types.JobDescriptor{}
	if raw := c.String("job"); raw != "" {
		if err := json.Unmarshal([]byte(raw), job); err != nil {
			return nil, fmt.Errorf("invalid job JSON: %w", err)
		}
	}
	if v := c.String("source-url"); v != "" {
		job.SourceURL = v
	}
	if v := c.String("routing-key"); v != "" {
		job.RoutingKey = v
	}
	if v := c.String("job-id"); v != "" {
		job.JobID = v
	}
	if v := c.String("source-record-id"); v != "" {
		job.SourceRecordID = v
	}
	if v := c.String("parent-folder-id"); v != "" {
		job.ParentFolderID = v
	}
	if c.IsSet("attempt") || job.Attempt == 0 {
		job.Attempt = c.Int("attempt")
	}
	return job, nil
}

func supervisorConfig(cfg *config.Config, route config.RoutingConfig) pipeline.Config {
	return pipeline.Config{
		Capture: capture.Config{
			FetchBinary: cfg.Capture.FetchBinary,
			RemuxBinary: cfg.Capture.RemuxBinary,
			SampleRate:  cfg.Capture.SampleRate,
			UserAgent:   cfg.Capture.UserAgent,
			StopGrace:   cfg.Capture.StopGrace.Duration,
		},
		Probe: capture.ProbeConfig{
			FetchBinary: cfg.Capture.FetchBinary,
		},
		Transcribe: transcribe.Config{
			ReadTimeout:    cfg.Capture.ReadTimeout.Duration,
			AttemptTimeout: cfg.Transcribe.AttemptTimeout.Duration,
			Chunker: audio.ChunkerConfig{
				SampleRate:      cfg.Capture.SampleRate,
				ChunkDuration:   cfg.Transcribe.ChunkDuration.Duration,
				MinTailDuration: cfg.Transcribe.MinTailDuration.Duration,
			},
		},
		Fallback: transcribe.FallbackConfig{
			FetchBinary:  cfg.Capture.FetchBinary,
			DecodeBinary: cfg.Capture.RemuxBinary,
			SampleRate:   cfg.Capture.SampleRate,
			Chunker: audio.ChunkerConfig{
				SampleRate:      cfg.Capture.SampleRate,
				ChunkDuration:   cfg.Transcribe.ChunkDuration.Duration,
				MinTailDuration: cfg.Transcribe.MinTailDuration.Duration,
			},
		},
		WorkDir:        cfg.WorkDir,
		Collection:     route.Collection,
		ParentFolderID: route.ParentFolderID,
	}
}

func buildEngine(cfg *config.Config) (engine.Engine, error) {
	return engine.NewOpenAIEngine(engine.OpenAIConfig{
		APIKey:   cfg.Transcribe.APIKey,
		BaseURL:  cfg.Transcribe.BaseURL,
		Model:    cfg.Transcribe.Model,
		Language: cfg.Transcribe.Language,
	})
}

func buildArtifactStore(ctx context.Context, cfg *config.Config) (store.ArtifactStore, error) {
	switch cfg.Storage.Backend {
	case "drive":
		return store.NewDriveStore(ctx, store.DriveConfig{
			CredentialsFile: cfg.Storage.CredentialsFile,
		})
	case "s3":
		return store.NewS3Store(ctx, store.S3Config{
			Bucket:       cfg.Storage.Bucket,
			Prefix:       cfg.Storage.Prefix,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.S3PathStyle,
		})
	case "local", "":
		dir := cfg.Storage.LocalDir
		if dir == "" {
			dir = "capstan-artifacts"
		}
		return store.NewLocalStore(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be drive, s3, or local)", cfg.Storage.Backend)
	}
}

func buildRecordStore(cfg *config.Config) (store.RecordStore, error) {
	return store.NewHTTPRecordStore(store.RecordAPIConfig{
		BaseURL: cfg.Records.BaseURL,
		Token:   cfg.Records.Token,
		Timeout: cfg.Records.Timeout.Duration,
	})
}

// buildSink maps the status config to a concrete sink. An empty type
// disables status reporting; the reporter tolerates a nil sink.
func buildSink(cfg *config.Config) (status.Sink, error) {
	retries := -1
	if cfg.Status.Retries != nil {
		retries = *cfg.Status.Retries
	}
	switch cfg.Status.Type {
	case "webhook":
		wcfg := webhook.Config{
			URL:     cfg.Status.URL,
			Headers: cfg.Status.Headers,
			Timeout: cfg.Status.Timeout.Duration,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		} else {
			wcfg.Retries = webhook.DefaultRetries
		}
		return webhook.New(wcfg)
	case "redis":
		rcfg := redissink.Config{
			URL:     cfg.Status.URL,
			Channel: cfg.Status.Channel,
			Timeout: cfg.Status.Timeout.Duration,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		} else {
			rcfg.Retries = redissink.DefaultRetries
		}
		return redissink.New(rcfg)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown status sink type: %s (must be webhook, redis, or none)", cfg.Status.Type)
	}
}
