package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyforge/internal/adapter/repo"
	"storyforge/internal/adapter/repo/memstore"
	"storyforge/internal/audio"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/http/handlers"
	httpapi "storyforge/internal/http/httpapi"
	"storyforge/internal/infra"
	"storyforge/internal/infra/geoip"
	"storyforge/internal/middleware"
	"storyforge/internal/payments/stripe"
	"storyforge/internal/providers/cover"
	"storyforge/internal/providers/story"
	"storyforge/internal/storage"
	"storyforge/internal/tts"
	"storyforge/internal/worker"
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

	var (
		users         domain.UserStore
		stories       domain.StoryStore
		ledgerStore   domain.LedgerStore
		settingsStore domain.SettingsStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		users = repo.NewUserRepository(pool)
		stories = repo.NewStoryRepository(pool)
		ledgerStore = repo.NewLedgerRepository(pool)
		settingsStore = repo.NewSettingsRepository(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		mem := memstore.New()
		users = mem.Users
		stories = mem.Stories
		ledgerStore = mem.Ledger
		settingsStore = mem.Settings
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	ledger := credits.NewLedger(ledgerStore, logger)
	packs := credits.NewPackTable(cfg.StripePriceID5, cfg.StripePriceID15, cfg.StripePriceID50)
	stripeClient := stripe.NewClient(stripe.Options{SecretKey: cfg.StripeSecretKey, Logger: &logger})
	checkout := credits.NewCheckout(packs, ledger, ledgerStore, stripeClient, cfg.AppBaseURL, logger)

	storyGen := story.NewOpenAIGenerator(story.Options{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.StoryModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	covers := cover.Registry{
		"dalle3": cover.NewOpenAIGenerator(cover.Options{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
			Store:      fileStore,
			Logger:     logger,
		}),
	}
	engine := tts.NewOpenAIEngine(tts.EngineOptions{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.TTSModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	synth := tts.NewPipeline(engine, fileStore, logger)

	processor := worker.NewProcessor(worker.ProcessorOptions{
		Stories:         stories,
		Settings:        settingsStore,
		Ledger:          ledger,
		Synthesizer:     synth,
		Assembler:       audio.NewAssembler(logger),
		BGM:             audio.NewLibrary(cfg.BGMLibraryPath),
		Paths:           fileStore,
		StageTimeout:    cfg.StageTimeout,
		RefundOnFailure: cfg.RefundOnFailure,
		Logger:          logger,
	})
	pool := worker.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueSize, processor, stories, logger)
	pool.Start(ctx)

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
	} else if resolver != nil {
		country = resolver.CountryCode
	}

	app := &handlers.App{
		Cfg:      cfg,
		Logger:   logger,
		Users:    users,
		Stories:  stories,
		Settings: settingsStore,
		Ledger:   ledger,
		Checkout: checkout,
		Packs:    packs,
		StoryGen: storyGen,
		Covers:   covers,
		Pool:     pool,
		Files:    fileStore,
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, country))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	pool.Wait()
	logger.Info().Msg("server stopped")
}
