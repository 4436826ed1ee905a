// Package story generates structured story content from a request prompt.
package story

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/tts"
)

// Usage reports the token counts consumed by one generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// GenerateParams describes one content-generation request.
type GenerateParams struct {
	Topic    string
	Setting  string
	Mood     string
	AgeRange string
	Length   string
	Language string
	Model    string
}

// Generator produces a structured content payload for a story request.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (*domain.StoryContent, Usage, error)
}

// OpenAIGenerator generates stories through the OpenAI chat completions API
// in JSON mode.
type OpenAIGenerator struct {
	client       *openai.Client
	defaultModel string
	logger       infra.Logger
}

// Options configures the generator.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// NewOpenAIGenerator builds the generator.
func NewOpenAIGenerator(opts Options) *OpenAIGenerator {
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
		model = "gpt-4o"
	}
	return &OpenAIGenerator{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: model,
		logger:       opts.Logger,
	}
}

var systemPrompt = strings.ReplaceAll(`You are a world-class children's story writer. You create vivid, age-appropriate stories with memorable characters, engaging dialog, and gentle morals.

You MUST respond with a single JSON object matching this exact schema:

{
  "title": "string",
  "summary": "A 2-3 sentence summary of the story suitable for generating a cover illustration",
  "characters": [
    {
      "name": "string",
      "age": integer,
      "gender": "male" or "female",
      "description": "short physical/personality description",
      "default_emotion": "one of: EMOTIONS_LIST"
    }
  ],
  "segments": [
    {
      "segment_id": integer (starting from 1),
      "type": "narration" or "dialog",
      "character": "character name or null for narration",
      "emotion": "one of: EMOTIONS_LIST",
      "text": "the spoken or narrated text",
      "pause_after_ms": integer (200-800)
    }
  ],
  "moral": "string or null"
}

Rules:
- For narration segments, set character to null and type to "narration"
- For dialog segments, set character to the speaking character's name and type to "dialog"
- Vary emotions naturally throughout the story
- Use appropriate pauses: shorter (200ms) mid-dialog, longer (600-800ms) between scenes
- Keep language age-appropriate for the specified age range
- Include a narrator character in the characters list with name "Narrator"`,
	"EMOTIONS_LIST", strings.Join(tts.Emotions(), ", "))

var lengthGuide = map[string]string{
	"short":  "8-12 segments",
	"medium": "15-25 segments",
	"long":   "30-45 segments",
}

var languageNames = map[string]string{
	"en": "English",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
}

// Generate runs one content-generation call and returns the validated
// payload plus the token usage for cost estimation.
func (g *OpenAIGenerator) Generate(ctx context.Context, params GenerateParams) (*domain.StoryContent, Usage, error) {
	model := params.Model
	if model == "" {
		model = g.defaultModel
	}
	guide, ok := lengthGuide[params.Length]
	if !ok {
		guide = lengthGuide["medium"]
	}
	language, ok := languageNames[strings.ToLower(params.Language)]
	if !ok {
		language = languageNames["en"]
	}

	userPrompt := fmt.Sprintf(
		"Write a %s children's story about '%s' set in %s. Target age range: %s years old. "+
			"Story length: %s (%s). Write the story in %s. Include at least 2-3 named characters with dialog.",
		params.Mood, params.Topic, params.Setting, params.AgeRange, params.Length, guide, language,
	)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.9,
		MaxTokens:      4096,
	})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("story: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, Usage{}, fmt.Errorf("story: empty completion response")
	}

	var content domain.StoryContent
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &content); err != nil {
		return nil, Usage{}, fmt.Errorf("story: decode payload: %w", err)
	}
	if err := normalizeContent(&content); err != nil {
		return nil, Usage{}, err
	}

	usage := Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	g.logger.Info().
		Str("title", content.Title).
		Int("segments", len(content.Segments)).
		Int("completion_tokens", usage.CompletionTokens).
		Msg("story: generated content")
	return &content, usage, nil
}

// normalizeContent validates the generated payload and restores the segment
// invariants: ids are unique, 1-based, and ordered by playback position.
func normalizeContent(content *domain.StoryContent) error {
	if strings.TrimSpace(content.Title) == "" {
		return fmt.Errorf("story: payload missing title")
	}
	if len(content.Segments) == 0 {
		return fmt.Errorf("story: payload has no segments")
	}
	sort.SliceStable(content.Segments, func(i, j int) bool {
		return content.Segments[i].ID < content.Segments[j].ID
	})
	for i := range content.Segments {
		seg := &content.Segments[i]
		seg.ID = i + 1
		if seg.Type != domain.SegmentDialog {
			seg.Type = domain.SegmentNarration
		}
		if seg.Emotion == "" {
			seg.Emotion = "neutral"
		}
		if seg.PauseAfter <= 0 {
			seg.PauseAfter = 400
		}
	}
	return nil
}
