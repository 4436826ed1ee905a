package tts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"storyforge/internal/domain"
)

type fakeEngine struct {
	failTexts map[string]bool
	requests  []SpeechRequest
}

func (f *fakeEngine) Synthesize(_ context.Context, req SpeechRequest) ([]byte, string, error) {
	f.requests = append(f.requests, req)
	if f.failTexts[req.Text] {
		return nil, "", errors.New("synthesis unavailable")
	}
	return []byte("audio:" + req.Text), "mp3", nil
}

type fakeRecordings struct {
	files map[string][]byte
}

func (f *fakeRecordings) Read(_ context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no recording %s", key)
	}
	return data, nil
}

func storyContent() domain.StoryContent {
	return domain.StoryContent{
		Title: "The Brave Turtle",
		Characters: []domain.Character{
			{Name: "Tilly", Age: 8, Gender: "female"},
		},
		Segments: []domain.Segment{
			{ID: 1, Type: domain.SegmentNarration, Emotion: "neutral", Text: "Once upon a time.", PauseAfter: 400},
			{ID: 2, Type: domain.SegmentDialog, Character: "Tilly", Emotion: "happy", Text: "Hello!", PauseAfter: 300},
			{ID: 3, Type: domain.SegmentNarration, Emotion: "gentle", Text: "The end.", PauseAfter: 0},
		},
	}
}

func TestSynthesizeAllSegmentsInOrder(t *testing.T) {
	engine := &fakeEngine{}
	pipeline := NewPipeline(engine, nil, zerolog.Nop())

	segments, totalChars, err := pipeline.Synthesize(context.Background(), storyContent(), nil, "en", "gpt-4o-mini-tts")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments: got %d, want 3", len(segments))
	}
	wantChars := len("Once upon a time.") + len("Hello!") + len("The end.")
	if totalChars != wantChars {
		t.Fatalf("total chars: got %d, want %d", totalChars, wantChars)
	}
	if string(segments[0].Data) != "audio:Once upon a time." {
		t.Fatalf("segment order broken: %q", segments[0].Data)
	}
	if segments[0].PauseAfterMS != 400 || segments[1].PauseAfterMS != 300 {
		t.Fatalf("pause values lost: %+v", segments)
	}
	if engine.requests[1].Voice != "shimmer" {
		t.Fatalf("dialog segment should use the character voice, got %q", engine.requests[1].Voice)
	}
}

func TestSynthesizeFailedSegmentBecomesPlaceholder(t *testing.T) {
	engine := &fakeEngine{failTexts: map[string]bool{"Hello!": true}}
	pipeline := NewPipeline(engine, nil, zerolog.Nop())

	segments, totalChars, err := pipeline.Synthesize(context.Background(), storyContent(), nil, "en", "gpt-4o-mini-tts")
	if err != nil {
		t.Fatalf("a single failed segment must not abort the run: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("failed segment must keep its position, got %d segments", len(segments))
	}
	if len(segments[1].Data) != 0 {
		t.Fatalf("failed segment must carry empty data")
	}
	if segments[1].PauseAfterMS != 300 {
		t.Fatalf("failed segment keeps its pause, got %d", segments[1].PauseAfterMS)
	}
	// The failed attempt still counts as characters sent for synthesis.
	wantChars := len("Once upon a time.") + len("Hello!") + len("The end.")
	if totalChars != wantChars {
		t.Fatalf("total chars: got %d, want %d", totalChars, wantChars)
	}
}

func TestSynthesizeRecordingOverride(t *testing.T) {
	engine := &fakeEngine{}
	recordings := &fakeRecordings{files: map[string][]byte{
		"recordings/u1/tilly.mp3": []byte("recorded-hello"),
	}}
	pipeline := NewPipeline(engine, recordings, zerolog.Nop())

	segments, totalChars, err := pipeline.Synthesize(context.Background(), storyContent(),
		map[int]string{2: "recordings/u1/tilly.mp3"}, "en", "gpt-4o-mini-tts")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(segments[1].Data) != "recorded-hello" {
		t.Fatalf("recording override ignored: %q", segments[1].Data)
	}
	if segments[1].Format != "mp3" {
		t.Fatalf("recording format from key extension: got %q", segments[1].Format)
	}
	// The overridden segment is never sent to synthesis.
	if len(engine.requests) != 2 {
		t.Fatalf("engine calls: got %d, want 2", len(engine.requests))
	}
	wantChars := len("Once upon a time.") + len("The end.")
	if totalChars != wantChars {
		t.Fatalf("overridden segment must not count chars: got %d, want %d", totalChars, wantChars)
	}
}

func TestSynthesizeUnreadableRecordingFallsBack(t *testing.T) {
	engine := &fakeEngine{}
	pipeline := NewPipeline(engine, &fakeRecordings{}, zerolog.Nop())

	segments, _, err := pipeline.Synthesize(context.Background(), storyContent(),
		map[int]string{2: "recordings/u1/missing.wav"}, "en", "gpt-4o-mini-tts")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(segments[1].Data) != "audio:Hello!" {
		t.Fatalf("unreadable recording must fall back to synthesis, got %q", segments[1].Data)
	}
}

func TestSynthesizeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pipeline := NewPipeline(&fakeEngine{}, nil, zerolog.Nop())

	_, _, err := pipeline.Synthesize(ctx, storyContent(), nil, "en", "gpt-4o-mini-tts")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
