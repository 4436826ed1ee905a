package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"storyforge/internal/infra"
)

// SpeechRequest carries everything one synthesis call needs.
type SpeechRequest struct {
	Text         string
	Voice        string
	Instructions string
	Model        string
}

// Engine synthesizes speech for a single segment. Implementations return the
// raw audio bytes and their container format ("mp3" or "wav").
type Engine interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, string, error)
}

// OpenAIEngine synthesizes speech through the OpenAI audio API.
type OpenAIEngine struct {
	client       *openai.Client
	defaultModel string
	logger       infra.Logger
}

// EngineOptions configures the OpenAI speech engine.
type EngineOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// NewOpenAIEngine builds the speech engine.
func NewOpenAIEngine(opts EngineOptions) *OpenAIEngine {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	return &OpenAIEngine{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: model,
		logger:       opts.Logger,
	}
}

// Synthesize calls the speech endpoint and returns MP3 bytes.
func (e *OpenAIEngine) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, "", fmt.Errorf("tts: empty text")
	}
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}

	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		Instructions:   req.Instructions,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("tts: create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, "", fmt.Errorf("tts: read speech response: %w", err)
	}
	e.logger.Debug().Int("bytes", len(data)).Str("voice", req.Voice).Msg("tts: synthesized segment")
	return data, "mp3", nil
}
