// Package worker drives submitted stories through the audio pipeline to a
// terminal state.
package worker

import (
	"context"
	"fmt"
	"time"

	"storyforge/internal/audio"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/tts"
)

// Processor runs one story through synthesis and assembly and commits the
// terminal transition. It is the single writer of a story after creation.
type Processor struct {
	stories  domain.StoryStore
	settings domain.SettingsStore
	ledger   *credits.Ledger
	synth    *tts.Pipeline
	asm      *audio.Assembler
	bgm      *audio.Library
	paths    ArtifactPaths

	stageTimeout    time.Duration
	refundOnFailure bool
	logger          infra.Logger
}

// ArtifactPaths resolves storage keys to filesystem paths for the export
// step.
type ArtifactPaths interface {
	Abs(key string) (string, error)
}

// ProcessorOptions wires a Processor.
type ProcessorOptions struct {
	Stories         domain.StoryStore
	Settings        domain.SettingsStore
	Ledger          *credits.Ledger
	Synthesizer     *tts.Pipeline
	Assembler       *audio.Assembler
	BGM             *audio.Library
	Paths           ArtifactPaths
	StageTimeout    time.Duration
	RefundOnFailure bool
	Logger          infra.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	stageTimeout := opts.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = 2 * time.Minute
	}
	bgm := opts.BGM
	if bgm == nil {
		bgm = audio.NewLibrary("")
	}
	return &Processor{
		stories:         opts.Stories,
		settings:        opts.Settings,
		ledger:          opts.Ledger,
		synth:           opts.Synthesizer,
		asm:             opts.Assembler,
		bgm:             bgm,
		paths:           opts.Paths,
		stageTimeout:    stageTimeout,
		refundOnFailure: opts.RefundOnFailure,
		logger:          opts.Logger,
	}
}

// Process runs the pipeline for one story. Any stage failure transitions
// the story to failed; the already-deducted credit is refunded only when the
// refund-on-failure policy is enabled.
func (p *Processor) Process(ctx context.Context, story *domain.Story) {
	log := p.logger.With().Str("story_id", story.ID).Logger()
	if story.Status.Terminal() {
		log.Warn().Str("status", string(story.Status)).Msg("worker: story already terminal, skipping")
		return
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("worker: settings unavailable, using defaults")
		settings = domain.DefaultSettings()
	}

	log.Info().Int("segments", len(story.Content.Segments)).Msg("worker: starting synthesis")
	synthCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	segments, totalChars, err := p.synth.Synthesize(synthCtx, story.Content, story.Recordings, story.Language, settings.TTSModel)
	cancel()
	if err != nil {
		p.fail(ctx, story, fmt.Errorf("synthesis stage: %w", err))
		return
	}

	opts := audio.Options{
		Tags: &audio.Tags{Title: story.Content.Title, Artist: "Storyforge", Album: "Storyforge Stories"},
	}
	var costBGM domain.Money
	if settings.BGMEnabled {
		if track, ok := p.bgm.TrackForMood(story.Mood); ok {
			opts.BGMPath = track
			costBGM = credits.CostBGMPerTrack
		}
	}

	audioKey := fmt.Sprintf("audio/%s.wav", story.ID)
	outputPath, err := p.paths.Abs(audioKey)
	if err != nil {
		p.fail(ctx, story, fmt.Errorf("resolve audio path: %w", err))
		return
	}
	duration, err := p.assembleWithDeadline(ctx, segments, opts, outputPath)
	if err != nil {
		p.fail(ctx, story, fmt.Errorf("assembly stage: %w", err))
		return
	}

	result := &domain.StoryResult{
		StoryID:         story.ID,
		AudioPath:       audioKey,
		BGMPath:         opts.BGMPath,
		DurationSeconds: duration,
		CostSynthesis:   credits.EstimateSynthesisCost(totalChars, settings.TTSModel),
		CostBGM:         costBGM,
		SynthesisChars:  totalChars,
	}
	if err := p.stories.SetResult(ctx, result); err != nil {
		p.fail(ctx, story, fmt.Errorf("commit result: %w", err))
		return
	}
	log.Info().Float64("seconds", duration).Msg("worker: story ready")
}

// assembleWithDeadline bounds the assembly stage the same way the synthesis
// stage is bounded. The assembler itself has no context parameter; a run
// that outlives the deadline is abandoned and its partial output removed by
// the failure path.
func (p *Processor) assembleWithDeadline(ctx context.Context, segments []tts.SegmentAudio, opts audio.Options, outputPath string) (float64, error) {
	type assembled struct {
		duration float64
		err      error
	}
	done := make(chan assembled, 1)
	go func() {
		duration, err := p.asm.Assemble(segments, opts, outputPath)
		done <- assembled{duration: duration, err: err}
	}()

	timer := time.NewTimer(p.stageTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.duration, res.err
	case <-timer.C:
		return 0, fmt.Errorf("deadline exceeded after %s", p.stageTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *Processor) fail(ctx context.Context, story *domain.Story, cause error) {
	log := p.logger.With().Str("story_id", story.ID).Logger()
	log.Error().Err(cause).Msg("worker: pipeline failed")

	// The terminal transition must land even when the parent context is
	// already cancelled during shutdown.
	failCtx := context.WithoutCancel(ctx)
	if err := p.stories.UpdateStatus(failCtx, story.ID, domain.StoryStatusFailed); err != nil {
		log.Error().Err(err).Msg("worker: failed-status commit failed")
		return
	}
	if p.refundOnFailure && p.ledger != nil {
		if err := p.ledger.RefundForFailure(failCtx, story.UserID, story.ID); err != nil {
			log.Error().Err(err).Msg("worker: refund failed")
		}
	}
}
