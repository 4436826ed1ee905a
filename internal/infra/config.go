package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	StoragePath    string
	BGMLibraryPath string
	GeoIPDBPath    string
	AppBaseURL     string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	StoryModel    string
	TTSModel      string
	CoverProvider string

	StripeSecretKey string
	StripePriceID5  string
	StripePriceID15 string
	StripePriceID50 string

	WorkerPoolSize  int
	WorkerQueueSize int
	StageTimeout    time.Duration
	RefundOnFailure bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		BGMLibraryPath: os.Getenv("BGM_LIBRARY_PATH"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		StoryModel:    getEnv("STORY_MODEL", "gpt-4o"),
		TTSModel:      getEnv("TTS_MODEL", "gpt-4o-mini-tts"),
		CoverProvider: getEnv("COVER_PROVIDER", "dalle3"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripePriceID5:  os.Getenv("STRIPE_PRICE_ID_5"),
		StripePriceID15: os.Getenv("STRIPE_PRICE_ID_15"),
		StripePriceID50: os.Getenv("STRIPE_PRICE_ID_50"),

		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 1),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 32),
		StageTimeout:    time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_SECONDS", 120)),
		RefundOnFailure: getEnvBool("REFUND_ON_FAILURE", false),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = 1
	}
	if cfg.WorkerQueueSize < 1 {
		cfg.WorkerQueueSize = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
