package config

import (
	"fmt"
	"time"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/scheduler"
)

const (
	KillSwitchEnv       = "GLOBAL_KILL_SWITCH"
	DefaultWindows      = "12:00"
	DefaultTimezone     = "UTC"
	DefaultLLMModel     = "gpt-4o-mini"
	DefaultCampaign     = "agentx_daily"
	DefaultSelectionCon = 5
)

type Config struct {
	Windows  []string
	Timezone string

	DatabaseURL string
	RedisURL    string
	AMQPURL     string

	LLMAPIURL string
	LLMAPIKey string
	LLMModel  string

	XAPIURL      string
	XUploadURL   string
	XAccessToken string
	DryRun       bool

	SelectionConcurrency int
	PollInterval         time.Duration

	MediaOutputDir    string
	FFmpegPath        string
	FallbackMediaPath string

	TrackingCampaign string

	Port        string
	RunPipeline bool
	LogLevel    string
}

// Load reads the process environment. Call LoadEnv first to pick up .env files.
func Load() *Config {
	return &Config{
		Windows:              GetEnvList("POST_WINDOWS", DefaultWindows),
		Timezone:             GetEnv("TIMEZONE", DefaultTimezone),
		DatabaseURL:          databaseURL(),
		RedisURL:             GetEnv("REDIS_URL", ""),
		AMQPURL:              GetEnv("AMQP_URL", ""),
		LLMAPIURL:            GetEnv("LLM_API_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            GetEnv("LLM_API_KEY", ""),
		LLMModel:             GetEnv("LLM_MODEL", DefaultLLMModel),
		XAPIURL:              GetEnv("X_API_URL", "https://api.x.com/2"),
		XUploadURL:           GetEnv("X_UPLOAD_URL", "https://api.x.com/2/media/upload"),
		XAccessToken:         GetEnv("X_ACCESS_TOKEN", ""),
		DryRun:               GetEnvBool("DRY_RUN", false),
		SelectionConcurrency: GetEnvInt("SELECTION_CONCURRENCY", DefaultSelectionCon),
		PollInterval:         GetEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
		MediaOutputDir:       GetEnv("MEDIA_OUTPUT_DIR", "tmp"),
		FFmpegPath:           GetEnv("FFMPEG_PATH", "ffmpeg"),
		FallbackMediaPath:    GetEnv("FALLBACK_MEDIA_PATH", ""),
		TrackingCampaign:     GetEnv("TRACKING_CAMPAIGN", DefaultCampaign),
		Port:                 GetEnv("PORT", "8080"),
		RunPipeline:          GetEnvBool("RUN_PIPELINE", true),
		LogLevel:             GetEnv("LOG_LEVEL", "info"),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func databaseURL() string {
	if dsn := GetEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		GetEnv("DB_USER", "postgres"),
		GetEnv("DB_PASSWORD", ""),
		GetEnv("DB_HOST", "localhost"),
		GetEnv("DB_PORT", "5432"),
		GetEnv("DB_NAME", "autoposter"),
	)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, appErrors.NewConfigurationError("TIMEZONE", c.Timezone, err.Error())
	}
	return loc, nil
}

// Validate checks the settings that cannot be defaulted at runtime.
func (c *Config) Validate() error {
	if _, err := scheduler.ParseWindows(c.Windows); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SelectionConcurrency < 1 {
		return appErrors.NewConfigurationError("SELECTION_CONCURRENCY", fmt.Sprint(c.SelectionConcurrency), "must be at least 1")
	}
	if !c.DryRun && c.XAccessToken == "" {
		return appErrors.NewConfigurationError("X_ACCESS_TOKEN", "", "required unless DRY_RUN=true")
	}
	return nil
}
