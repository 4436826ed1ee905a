package story

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"storyforge/internal/domain"
)

func TestNormalizeContentRestoresInvariants(t *testing.T) {
	content := &domain.StoryContent{
		Title: "The Cloud Whale",
		Segments: []domain.Segment{
			{ID: 7, Type: "dialog", Character: "Pip", Emotion: "happy", Text: "Up we go!", PauseAfter: 300},
			{ID: 2, Type: "invalid-type", Text: "High above the town."},
		},
	}
	if err := normalizeContent(content); err != nil {
		t.Fatalf("normalizeContent: %v", err)
	}
	if content.Segments[0].Text != "High above the town." {
		t.Fatalf("segments not reordered by id: %+v", content.Segments)
	}
	if content.Segments[0].ID != 1 || content.Segments[1].ID != 2 {
		t.Fatalf("ids not renumbered: %+v", content.Segments)
	}
	if content.Segments[0].Type != domain.SegmentNarration {
		t.Fatalf("unknown type must collapse to narration: %q", content.Segments[0].Type)
	}
	if content.Segments[0].Emotion != "neutral" || content.Segments[0].PauseAfter != 400 {
		t.Fatalf("defaults not applied: %+v", content.Segments[0])
	}
	if content.Segments[1].PauseAfter != 300 {
		t.Fatalf("explicit pause overwritten: %+v", content.Segments[1])
	}
}

func TestNormalizeContentRejectsEmptyPayloads(t *testing.T) {
	if err := normalizeContent(&domain.StoryContent{Segments: []domain.Segment{{ID: 1, Text: "x"}}}); err == nil {
		t.Fatalf("missing title must be rejected")
	}
	if err := normalizeContent(&domain.StoryContent{Title: "T"}); err == nil {
		t.Fatalf("payload without segments must be rejected")
	}
}

func TestGenerateParsesCompletion(t *testing.T) {
	payload := domain.StoryContent{
		Title:   "The Cloud Whale",
		Summary: "A whale made of clouds carries a village's wishes.",
		Characters: []domain.Character{
			{Name: "Narrator", Age: 40, Gender: "female"},
			{Name: "Pip", Age: 8, Gender: "male"},
		},
		Segments: []domain.Segment{
			{ID: 1, Type: domain.SegmentNarration, Emotion: "gentle", Text: "Once, above a quiet town.", PauseAfter: 600},
			{ID: 2, Type: domain.SegmentDialog, Character: "Pip", Emotion: "excited", Text: "Look up!", PauseAfter: 200},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":` + string(mustQuote(t, encoded)) + `}}],
			"usage":{"prompt_tokens":250,"completion_tokens":1100}
		}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Options{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Logger:  zerolog.Nop(),
	})
	content, usage, err := gen.Generate(context.Background(), GenerateParams{
		Topic:    "a cloud whale",
		Setting:  "a mountain village",
		Mood:     "calm",
		AgeRange: "5-8",
		Length:   "short",
		Language: "fr",
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content.Title != "The Cloud Whale" || len(content.Segments) != 2 {
		t.Fatalf("content: %+v", content)
	}
	if usage.PromptTokens != 250 || usage.CompletionTokens != 1100 {
		t.Fatalf("usage: %+v", usage)
	}

	if gotBody.Model != "gpt-4o" {
		t.Fatalf("model: %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 {
		t.Fatalf("messages: %d", len(gotBody.Messages))
	}
	user := gotBody.Messages[1].Content
	for _, want := range []string{"a cloud whale", "a mountain village", "French", "8-12 segments"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q: %s", want, user)
		}
	}
}

func mustQuote(t *testing.T, raw []byte) []byte {
	t.Helper()
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		t.Fatalf("quote payload: %v", err)
	}
	return quoted
}
