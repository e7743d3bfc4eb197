package config

import (
	"fmt"
	"time"
)

// Config represents a capstan.yaml configuration file.
// All values are optional and act as defaults for capstan process
// flags. CLI flags always override config values.
type Config struct {
	Capture    CaptureConfig            `yaml:"capture"`
	Transcribe TranscribeConfig         `yaml:"transcribe"`
	Storage    StorageConfig            `yaml:"storage"`
	Records    RecordsConfig            `yaml:"records"`
	Status     StatusConfig             `yaml:"status"`
	Commit     CommitConfig             `yaml:"commit"`
	Routing    map[string]RoutingConfig `yaml:"routing"`
	// WorkDir is the scratch directory root for per-job workspaces.
	WorkDir string `yaml:"work_dir"`
}

// CaptureConfig holds capture-stage defaults from the config file.
type CaptureConfig struct {
	FetchBinary string   `yaml:"fetch_binary"`
	RemuxBinary string   `yaml:"remux_binary"`
	SampleRate  int      `yaml:"sample_rate"`
	UserAgent   string   `yaml:"user_agent"`
	ReadTimeout Duration `yaml:"read_timeout"`
	StopGrace   Duration `yaml:"stop_grace"`
}

// TranscribeConfig holds engine and chunking defaults.
type TranscribeConfig struct {
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	Language        string   `yaml:"language"`
	ChunkDuration   Duration `yaml:"chunk_duration"`
	MinTailDuration Duration `yaml:"min_tail_duration"`
	AttemptTimeout  Duration `yaml:"attempt_timeout"`
}

// StorageConfig holds artifact store defaults from the config file.
type StorageConfig struct {
	// Backend selects the driver: "drive", "s3", or "local".
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
	CredentialsFile string `yaml:"credentials_file"`
	LocalDir        string `yaml:"local_dir"`
}

// RecordsConfig holds record API defaults from the config file.
type RecordsConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// StatusConfig holds status sink defaults from the config file.
type StatusConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// CommitConfig holds commit coordinator defaults.
type CommitConfig struct {
	Retries        int      `yaml:"retries"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	PreviewChars   int      `yaml:"preview_chars"`
}

// RoutingConfig maps one routing key to its destination collection and
// parent storage folder.
type RoutingConfig struct {
	Collection     string `yaml:"collection"`
	ParentFolderID string `yaml:"parent_folder_id"`
}

// Resolve returns the routing entry for key. The job descriptor's own
// parent-folder hint, when set, wins over the configured one.
func (c *Config) Resolve(key, folderHint string) (RoutingConfig, error) {
	route, ok := c.Routing[key]
	if !ok {
		return RoutingConfig{}, fmt.Errorf("no routing entry for key %q", key)
	}
	if folderHint != "" {
		route.ParentFolderID = folderHint
	}
	return route, nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
