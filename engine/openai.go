package engine

import (
	"bytes"
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soundline-io/capstan/types"
)

// Decoding parameters are fixed for determinism: low temperature and no
// conditioning on previous chunk text, which avoids cross-chunk
// repetition artifacts.
const defaultTemperature = 0.1

// OpenAIConfig configures the OpenAI-compatible speech endpoint client.
// Works against api.openai.com or any local whisper server exposing the
// same transcription API.
type OpenAIConfig struct {
	// APIKey authenticates the endpoint. May be a dummy value for local
	// servers that skip auth.
	APIKey string
	// BaseURL overrides the endpoint URL (empty uses the OpenAI default).
	BaseURL string
	// Model is the transcription model name (default whisper-1).
	Model string
	// Language is the ISO language hint; empty enables auto-detection.
	Language string
	// Temperature is the decoding temperature (default 0.1).
	Temperature float32
}

// OpenAIEngine invokes an OpenAI-compatible audio transcription endpoint.
type OpenAIEngine struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIEngine creates the engine client. Returns an error when no
// API key is configured.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("engine: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Transcribe submits one WAV buffer with verbose JSON output so segment
// timestamps come back alongside the text.
func (e *OpenAIEngine) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       e.cfg.Model,
		FilePath:    "chunk.wav",
		Reader:      bytes.NewReader(wav),
		Language:    e.cfg.Language,
		Temperature: e.cfg.Temperature,
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, err
	}

	segments := make([]types.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, types.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}

	return &Result{Text: resp.Text, Segments: segments}, nil
}

// Verify OpenAIEngine implements Engine.
var _ Engine = (*OpenAIEngine)(nil)
