package cover

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"storyforge/internal/infra"
	"storyforge/internal/storage"
)

// OpenAIGenerator renders covers through DALL-E 3 and persists the PNG to
// local storage.
type OpenAIGenerator struct {
	client *openai.Client
	store  *storage.FileStore
	logger infra.Logger
}

// Options configures the cover generator.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Store      *storage.FileStore
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
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		store:  opts.Store,
		logger: opts.Logger,
	}
}

func buildPrompt(summary string) string {
	return fmt.Sprintf(
		"A wordless children's book illustration with zero text anywhere. Scene: %s. "+
			"Style: hand-painted watercolor cartoon, vibrant pastel colors, friendly characters, "+
			"rounded shapes, magical atmosphere, suitable for young children. "+
			"CRITICAL: This is a purely visual, textless illustration. "+
			"There are no words, letters, numbers, titles, labels, signs, banners, "+
			"speech bubbles, captions, or any form of writing visible anywhere in the image. "+
			"Every surface is clean of typography.",
		summary,
	)
}

// Generate renders one 1024x1024 cover and returns its storage key.
func (g *OpenAIGenerator) Generate(ctx context.Context, summary, storyID string) (string, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         buildPrompt(summary),
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		Style:          openai.CreateImageStyleVivid,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("cover: create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("cover: provider returned no images")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", fmt.Errorf("cover: decode image payload: %w", err)
	}

	key, err := g.store.Write(ctx, fmt.Sprintf("covers/%s.png", storyID), data)
	if err != nil {
		return "", fmt.Errorf("cover: persist image: %w", err)
	}
	g.logger.Info().Str("story_id", storyID).Str("key", key).Msg("cover: generated")
	return key, nil
}
