// SPDX-License-Identifier: MIT

// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrBucketRequired is returned when BUCKET is not set.
	ErrBucketRequired = errors.New("config: BUCKET is required")
	// ErrAPIKeyRequired is returned when GENAI_API_KEY is not set.
	ErrAPIKeyRequired = errors.New("config: GENAI_API_KEY is required")
)

// Config holds all configuration for the worker.
type Config struct {
	// Server settings
	Port             int    `env:"PORT, default=8080" validate:"min=1,max=65535"`
	WorkerAPIToken   string `env:"WORKER_API_TOKEN"`
	HTTPRateLimitRPM int    `env:"HTTP_RATE_LIMIT_RPM, default=120" validate:"min=1"`

	// Storage settings
	Bucket         string `env:"BUCKET, required" validate:"required"`
	VideosPrefix   string `env:"VIDEOS_PREFIX, default=child-videos" validate:"required"`
	SessionsPrefix string `env:"SESSIONS_PREFIX, default=sessions" validate:"required"`
	AnalysisPrefix string `env:"ANALYSIS_PREFIX, default=analysis" validate:"required"`

	// Inference settings
	Model        string  `env:"MODEL, default=gemini-2.5-flash" validate:"required"`
	Temperature  float64 `env:"TEMPERATURE, default=0.4" validate:"min=0,max=2"`
	GenAIAPIKey  string  `env:"GENAI_API_KEY, required" validate:"required"`
	GenAIBaseURL string  `env:"GENAI_BASE_URL, default=https://generativelanguage.googleapis.com" validate:"url"`

	// Pipeline tuning
	Concurrency              int     `env:"CONCURRENCY, default=5" validate:"min=1"`
	ChunkSeconds             float64 `env:"CHUNK_SECONDS, default=30" validate:"gt=0,gtfield=ChunkOverlapSeconds"`
	ChunkOverlapSeconds      float64 `env:"CHUNK_OVERLAP_SECONDS, default=4" validate:"min=0"`
	MaxClipFPS               int     `env:"MAX_CLIP_FPS, default=24" validate:"min=1"`
	MergeGapSeconds          float64 `env:"MERGE_GAP_SECONDS, default=2.5" validate:"min=0"`
	ValidationMarginSeconds  float64 `env:"VALIDATION_MARGIN_SECONDS, default=3" validate:"min=0"`
	MinActionDurationSeconds float64 `env:"MIN_ACTION_DURATION_SECONDS, default=0.8" validate:"gt=0"`

	// Rate and retry discipline, all in milliseconds
	CallTimeoutMS            int64 `env:"CALL_TIMEOUT_MS, default=120000" validate:"min=1000"`
	TransientRetryIntervalMS int64 `env:"TRANSIENT_RETRY_INTERVAL_MS, default=60000" validate:"min=0"`
	MaxTransientRetries      int   `env:"MAX_TRANSIENT_RETRIES, default=3" validate:"min=0"`
	GlobalRateLimitPauseMS   int64 `env:"GLOBAL_RATE_LIMIT_PAUSE_MS, default=300000" validate:"min=0"`
	FileReadyTimeoutMS       int64 `env:"FILE_READY_TIMEOUT_MS, default=300000" validate:"min=1000"`

	// Media tooling
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" validate:"required"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" validate:"required"`
	TempDir     string `env:"TEMP_DIR"`

	// Logging settings
	LogLevel   string `env:"LOG_LEVEL, default=info"`
	LogService string `env:"LOG_SERVICE, default=analysis-worker"`

	// Tracing settings
	OTELEnabled      bool    `env:"OTEL_ENABLED, default=false"`
	OTELExporter     string  `env:"OTEL_EXPORTER, default=grpc" validate:"oneof=grpc http noop"`
	OTELEndpoint     string  `env:"OTEL_ENDPOINT, default=localhost:4317"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO, default=0.1" validate:"min=0,max=1"`
	Environment      string  `env:"ENVIRONMENT, default=production"`
}

// Load reads configuration from process environment variables.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from the given lookuper. Tests pass an
// envconfig.MapLookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		if strings.Contains(err.Error(), "BUCKET") {
			return nil, ErrBucketRequired
		}
		if strings.Contains(err.Error(), "GENAI_API_KEY") {
			return nil, ErrAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	if c.GenAIAPIKey == "" {
		return ErrAPIKeyRequired
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// CallTimeout is the hard wall-time cap for a single inference attempt.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// TransientRetryInterval is the fixed sleep between retryable-error attempts.
func (c *Config) TransientRetryInterval() time.Duration {
	return time.Duration(c.TransientRetryIntervalMS) * time.Millisecond
}

// GlobalRateLimitPause is the shared backoff window applied on throttling.
func (c *Config) GlobalRateLimitPause() time.Duration {
	return time.Duration(c.GlobalRateLimitPauseMS) * time.Millisecond
}

// FileReadyTimeout bounds the wait for an uploaded media file to become ACTIVE.
func (c *Config) FileReadyTimeout() time.Duration {
	return time.Duration(c.FileReadyTimeoutMS) * time.Millisecond
}

// ChunkStepSeconds is the distance between consecutive segment starts.
func (c *Config) ChunkStepSeconds() float64 {
	return c.ChunkSeconds - c.ChunkOverlapSeconds
}

// LogSnapshot emits the effective configuration with secrets masked.
func (c *Config) LogSnapshot(logger zerolog.Logger) {
	logger.Info().
		Str("event", "config.loaded").
		Int("port", c.Port).
		Str("bucket", c.Bucket).
		Str("videos_prefix", c.VideosPrefix).
		Str("sessions_prefix", c.SessionsPrefix).
		Str("analysis_prefix", c.AnalysisPrefix).
		Str("model", c.Model).
		Float64("temperature", c.Temperature).
		Str("genai_base_url", c.GenAIBaseURL).
		Str("genai_api_key", mask(c.GenAIAPIKey)).
		Str("worker_api_token", mask(c.WorkerAPIToken)).
		Int("concurrency", c.Concurrency).
		Float64("chunk_seconds", c.ChunkSeconds).
		Float64("chunk_overlap_seconds", c.ChunkOverlapSeconds).
		Int("max_clip_fps", c.MaxClipFPS).
		Int64("call_timeout_ms", c.CallTimeoutMS).
		Int64("global_rate_limit_pause_ms", c.GlobalRateLimitPauseMS).
		Bool("otel_enabled", c.OTELEnabled).
		Msg("configuration loaded")
}

func mask(v string) string {
	if v == "" {
		return "unset"
	}
	return "***"
}
