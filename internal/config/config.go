// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/memory-images/internal/transition"
)

// Static errors for configuration validation.
var (
	// ErrInvalidFilterMode is returned when SEGMENT_FILTER_MODE is not a known mode.
	ErrInvalidFilterMode = errors.New("config: SEGMENT_FILTER_MODE must be transition or legacy")
	// ErrInvalidFrame is returned when the frame size or rate is not positive.
	ErrInvalidFrame = errors.New("config: VIDEO_WIDTH, VIDEO_HEIGHT and VIDEO_FPS must be positive")
	// ErrInvalidJPEGQuality is returned when JPEG_QUALITY is outside 1-100.
	ErrInvalidJPEGQuality = errors.New("config: JPEG_QUALITY must be between 1 and 100")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrInvalidLogFormat is returned when LOG_FORMAT is not json or text.
	ErrInvalidLogFormat = errors.New("config: LOG_FORMAT must be json or text")
	// ErrIncompleteS3 is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrIncompleteS3 = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port               int      `env:"PORT, default=8080" json:"port"`
	MaxUploadMB        int      `env:"MAX_UPLOAD_MB, default=200" json:"max_upload_mb"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/memory-images" json:"temp_dir"`
	OutputDir string `env:"OUTPUT_DIR" json:"output_dir,omitempty"` // Defaults to TEMP_DIR/videos

	// Engine settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Rendering settings
	SegmentFilterMode string `env:"SEGMENT_FILTER_MODE, default=transition" json:"segment_filter_mode"`
	VideoWidth        int    `env:"VIDEO_WIDTH, default=1280" json:"video_width"`
	VideoHeight       int    `env:"VIDEO_HEIGHT, default=720" json:"video_height"`
	VideoFPS          int    `env:"VIDEO_FPS, default=25" json:"video_fps"`
	NormalizeImages   bool   `env:"NORMALIZE_IMAGES, default=true" json:"normalize_images"`
	JPEGQuality       int    `env:"JPEG_QUALITY, default=90" json:"jpeg_quality"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX, default=videos" json:"s3_key_prefix,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration from the given lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that enumerated and numeric settings hold usable values.
func (c *Config) Validate() error {
	if _, err := transition.ParseFilterMode(c.SegmentFilterMode); err != nil {
		return ErrInvalidFilterMode
	}
	if c.VideoWidth <= 0 || c.VideoHeight <= 0 || c.VideoFPS <= 0 {
		return ErrInvalidFrame
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return ErrInvalidJPEGQuality
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrIncompleteS3
	}
	return nil
}

// FilterMode returns the parsed segment filter mode.
func (c *Config) FilterMode() transition.FilterMode {
	m, err := transition.ParseFilterMode(c.SegmentFilterMode)
	if err != nil {
		return transition.FilterModeTransition
	}
	return m
}

// VideoDir returns the directory finished videos are stored in.
func (c *Config) VideoDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.TempDir, "videos")
}

// LockFile returns the path of the working-storage lock file.
func (c *Config) LockFile() string {
	return filepath.Join(c.TempDir, "render.lock")
}

// MaxUploadBytes returns the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return NewLogger(os.Stdout, c.LogFormat, c.LogLevel)
}

// NewLogger creates a structured logger writing to w.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, OutputDir: %s, FFmpegPath: %s, SegmentFilterMode: %s, Video: %dx%d@%d, NormalizeImages: %t, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.VideoDir(),
		c.FFmpegPath,
		c.SegmentFilterMode,
		c.VideoWidth,
		c.VideoHeight,
		c.VideoFPS,
		c.NormalizeImages,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
