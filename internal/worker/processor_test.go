package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyforge/internal/adapter/repo/memstore"
	"storyforge/internal/audio"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/storage"
	"storyforge/internal/tts"
)

type silenceEngine struct {
	wavData []byte
	calls   int
}

func (e *silenceEngine) Synthesize(_ context.Context, _ tts.SpeechRequest) ([]byte, string, error) {
	e.calls++
	return e.wavData, "wav", nil
}

func silenceWAV(t *testing.T, d time.Duration) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seg.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

type fixture struct {
	mem       *memstore.Store
	ledger    *credits.Ledger
	processor *Processor
	files     *storage.FileStore
	userID    string
}

func newFixture(t *testing.T, refundOnFailure bool) *fixture {
	t.Helper()
	mem := memstore.New()
	user := &domain.User{ID: uuid.NewString(), Email: "p@example.com", Username: "p"}
	if err := mem.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ledger := credits.NewLedger(mem.Ledger, zerolog.Nop())
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	engine := &silenceEngine{wavData: silenceWAV(t, 300*time.Millisecond)}
	processor := NewProcessor(ProcessorOptions{
		Stories:         mem.Stories,
		Settings:        mem.Settings,
		Ledger:          ledger,
		Synthesizer:     tts.NewPipeline(engine, files, zerolog.Nop()),
		Assembler:       audio.NewAssembler(zerolog.Nop()),
		Paths:           files,
		StageTimeout:    5 * time.Second,
		RefundOnFailure: refundOnFailure,
		Logger:          zerolog.Nop(),
	})
	return &fixture{mem: mem, ledger: ledger, processor: processor, files: files, userID: user.ID}
}

func (fx *fixture) createStory(t *testing.T) *domain.Story {
	t.Helper()
	story := &domain.Story{
		ID:     uuid.NewString(),
		UserID: fx.userID,
		Topic:  "turtles",
		Status: domain.StoryStatusTTSProcessing,
		Content: domain.StoryContent{
			Title: "The Brave Turtle",
			Segments: []domain.Segment{
				{ID: 1, Type: domain.SegmentNarration, Emotion: "neutral", Text: "Once upon a time.", PauseAfter: 400},
				{ID: 2, Type: domain.SegmentNarration, Emotion: "gentle", Text: "The end."},
			},
		},
		CostGeneration: 10_000,
		CostCover:      40_000,
		CostTotal:      50_000,
		SegmentCount:   2,
	}
	if err := fx.mem.Stories.Create(context.Background(), story); err != nil {
		t.Fatalf("create story: %v", err)
	}
	return story
}

func TestProcessCompletesStory(t *testing.T) {
	fx := newFixture(t, false)
	story := fx.createStory(t)

	fx.processor.Process(context.Background(), story)

	got, err := fx.mem.Stories.GetByID(context.Background(), story.ID)
	if err != nil {
		t.Fatalf("reload story: %v", err)
	}
	if got.Status != domain.StoryStatusReady {
		t.Fatalf("status: got %s, want ready", got.Status)
	}
	if got.AudioPath == "" {
		t.Fatalf("audio path missing")
	}
	path, err := fx.files.Abs(got.AudioPath)
	if err != nil {
		t.Fatalf("resolve audio path: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("audio artifact missing: %v", err)
	}
	if got.DurationSeconds <= 0 {
		t.Fatalf("duration: got %f", got.DurationSeconds)
	}
	wantChars := len("Once upon a time.") + len("The end.")
	if got.SynthesisChars != wantChars {
		t.Fatalf("synthesis chars: got %d, want %d", got.SynthesisChars, wantChars)
	}
	wantTotal := got.CostGeneration + got.CostCover + got.CostSynthesis + got.CostBGM
	if got.CostTotal != wantTotal {
		t.Fatalf("cost total %d diverged from component sum %d", got.CostTotal, wantTotal)
	}
}

func TestProcessFailureMarksFailedWithoutRefund(t *testing.T) {
	fx := newFixture(t, false)
	story := fx.createStory(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fx.processor.Process(ctx, story)

	got, _ := fx.mem.Stories.GetByID(context.Background(), story.ID)
	if got.Status != domain.StoryStatusFailed {
		t.Fatalf("status: got %s, want failed", got.Status)
	}
	balance, _ := fx.ledger.CheckBalance(context.Background(), fx.userID)
	if balance != 0 {
		t.Fatalf("refund policy disabled, balance must stay 0, got %d", balance)
	}
}

func TestProcessFailureRefundsWhenEnabled(t *testing.T) {
	fx := newFixture(t, true)
	story := fx.createStory(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fx.processor.Process(ctx, story)

	got, _ := fx.mem.Stories.GetByID(context.Background(), story.ID)
	if got.Status != domain.StoryStatusFailed {
		t.Fatalf("status: got %s, want failed", got.Status)
	}
	balance, _ := fx.ledger.CheckBalance(context.Background(), fx.userID)
	if balance != 1 {
		t.Fatalf("refund policy enabled, balance: got %d, want 1", balance)
	}
	entries, _ := fx.ledger.Transactions(context.Background(), fx.userID)
	if len(entries) != 1 || entries[0].Type != domain.TransactionRefund {
		t.Fatalf("expected one refund transaction, got %+v", entries)
	}
}

func TestProcessSkipsTerminalStory(t *testing.T) {
	fx := newFixture(t, true)
	story := fx.createStory(t)
	if err := fx.mem.Stories.UpdateStatus(context.Background(), story.ID, domain.StoryStatusFailed); err != nil {
		t.Fatalf("fail story: %v", err)
	}
	story.Status = domain.StoryStatusFailed

	fx.processor.Process(context.Background(), story)

	got, _ := fx.mem.Stories.GetByID(context.Background(), story.ID)
	if got.Status != domain.StoryStatusFailed {
		t.Fatalf("terminal story must not transition, got %s", got.Status)
	}
	balance, _ := fx.ledger.CheckBalance(context.Background(), fx.userID)
	if balance != 0 {
		t.Fatalf("terminal skip must not touch the ledger, balance %d", balance)
	}
}

func TestPoolSubmitQueueFull(t *testing.T) {
	fx := newFixture(t, false)
	pool := NewPool(1, 1, fx.processor, fx.mem.Stories, zerolog.Nop())
	// Not started: the single queue slot fills and stays full.
	if err := pool.Submit(uuid.NewString()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := pool.Submit(uuid.NewString()); err != ErrQueueFull {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
}

func TestPoolProcessesSubmittedStory(t *testing.T) {
	fx := newFixture(t, false)
	story := fx.createStory(t)
	pool := NewPool(1, 4, fx.processor, fx.mem.Stories, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	if err := pool.Submit(story.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := fx.mem.Stories.GetByID(context.Background(), story.ID)
		if err != nil {
			t.Fatalf("reload story: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != domain.StoryStatusReady {
				t.Fatalf("status: got %s, want ready", got.Status)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("story never reached a terminal state")
}
