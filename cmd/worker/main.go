// The worker binary drains stories stuck in tts_processing, typically after
// an api crash or restart dropped them from the in-process pool.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyforge/internal/adapter/repo"
	"storyforge/internal/audio"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/storage"
	"storyforge/internal/tts"
	"storyforge/internal/worker"
)

const (
	pollInterval = 5 * time.Second
	staleAge     = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker: DATABASE_URL is required")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to apply schema")
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	stories := repo.NewStoryRepository(pool)
	ledger := credits.NewLedger(repo.NewLedgerRepository(pool), logger)

	httpClient := &http.Client{Timeout: 120 * time.Second}
	engine := tts.NewOpenAIEngine(tts.EngineOptions{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.TTSModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	processor := worker.NewProcessor(worker.ProcessorOptions{
		Stories:         stories,
		Settings:        repo.NewSettingsRepository(pool),
		Ledger:          ledger,
		Synthesizer:     tts.NewPipeline(engine, fileStore, logger),
		Assembler:       audio.NewAssembler(logger),
		BGM:             audio.NewLibrary(cfg.BGMLibraryPath),
		Paths:           fileStore,
		StageTimeout:    cfg.StageTimeout,
		RefundOnFailure: cfg.RefundOnFailure,
		Logger:          logger,
	})

	logger.Info().Msg("worker: started")
	if err := run(ctx, stories, processor, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func run(ctx context.Context, stories domain.StoryStore, processor *worker.Processor, logger infra.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		story, err := stories.ClaimStalled(ctx, staleAge)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Error().Err(err).Msg("worker: claim failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		logger.Info().Str("story_id", story.ID).Msg("worker: claimed stalled story")
		processor.Process(ctx, story)
	}
}
