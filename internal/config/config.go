package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the root configuration of the service
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Logging       LoggingConfig       `toml:"logging"`
	OpenAI        OpenAIConfig        `toml:"openai"`
	Capture       CaptureConfig       `toml:"capture"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Structuring   StructuringConfig   `toml:"structuring"`
	Illustration  IllustrationConfig  `toml:"illustration"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Storage       StorageConfig       `toml:"storage"`
	Airports      []AirportConfig     `toml:"airports" validate:"required,min=1,dive"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port" validate:"min=1,max=65535"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	StaticFilesDir     string   `toml:"static_files_dir"`
	MaxConnections     int      `toml:"max_connections" validate:"min=0"`
	// WriteTimeoutSeconds must cover PipelineBudget; 0 disables the timeout
	WriteTimeoutSeconds int `toml:"write_timeout_seconds" validate:"min=0"`
}

// LoggingConfig configures pkg/logger
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// OpenAIConfig holds the AI service credentials
type OpenAIConfig struct {
	APIKey                string `toml:"api_key"`
	APIKeyFile            string `toml:"api_key_file"`
	BaseURL               string `toml:"base_url" validate:"omitempty,url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" validate:"min=1"`
}

// CaptureConfig configures the audio capture window
type CaptureConfig struct {
	Backend               string `toml:"backend" validate:"oneof=http ffmpeg"`
	DurationSeconds       int    `toml:"duration_seconds" validate:"min=1"`
	GraceSeconds          int    `toml:"grace_seconds" validate:"min=0"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds" validate:"min=1"`
	MinBytes              int64  `toml:"min_bytes" validate:"min=0"`
	TempDir               string `toml:"temp_dir" validate:"required"`
	FFmpegPath            string `toml:"ffmpeg_path"`
	FFmpegBitrate         string `toml:"ffmpeg_bitrate"`
}

// TranscriptionConfig configures the speech-to-text stage
type TranscriptionConfig struct {
	Model          string `toml:"model" validate:"required"`
	Language       string `toml:"language"`
	Prompt         string `toml:"prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=1"`
	MaxUploadMB    int    `toml:"max_upload_mb" validate:"min=1"`
}

// StructuringConfig configures the extraction/translation stage
type StructuringConfig struct {
	Model          string  `toml:"model" validate:"required"`
	TargetLanguage string  `toml:"target_language" validate:"required"`
	Temperature    float64 `toml:"temperature" validate:"min=0,max=2"`
	PromptPath     string  `toml:"prompt_path"`
	TimeoutSeconds int     `toml:"timeout_seconds" validate:"min=1"`
}

// IllustrationConfig configures the weather image stage
type IllustrationConfig struct {
	Enabled             bool   `toml:"enabled"`
	Model               string `toml:"model" validate:"required"`
	Size                string `toml:"size"`
	ImagesDir           string `toml:"images_dir" validate:"required"`
	URLPrefix           string `toml:"url_prefix" validate:"required,startswith=/"`
	RetentionPerAirport int    `toml:"retention_per_airport" validate:"min=0"`
	PromptPath          string `toml:"prompt_path"`
	TimeoutSeconds      int    `toml:"timeout_seconds" validate:"min=1"`
}

// PipelineConfig configures retry behaviour shared by the AI stages
type PipelineConfig struct {
	RetryBackoffMs int `toml:"retry_backoff_ms" validate:"min=0"`
}

// StorageConfig configures the SQLite image registry
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path" validate:"required"`
}

// AirportConfig describes one ATIS broadcast
type AirportConfig struct {
	Code      string `toml:"code" validate:"required,len=4,uppercase"`
	Name      string `toml:"name" validate:"required"`
	StreamURL string `toml:"stream_url" validate:"required,url"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                5000,
			StaticFilesDir:      "./static",
			MaxConnections:      256,
			WriteTimeoutSeconds: 360,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		OpenAI: OpenAIConfig{
			APIKeyFile:            "API.txt",
			RequestTimeoutSeconds: 120,
		},
		Capture: CaptureConfig{
			Backend:               "http",
			DurationSeconds:       90,
			GraceSeconds:          30,
			ConnectTimeoutSeconds: 10,
			MinBytes:              16 * 1024,
			TempDir:               "./temp",
			FFmpegPath:            "ffmpeg",
			FFmpegBitrate:         "128k",
		},
		Transcription: TranscriptionConfig{
			Model:          "whisper-1",
			Language:       "en",
			Prompt:         "Aviation ATIS broadcast. Information, runway, wind, visibility, clouds, temperature, dewpoint, QNH.",
			TimeoutSeconds: 60,
			MaxUploadMB:    25,
		},
		Structuring: StructuringConfig{
			Model:          "gpt-4o-mini",
			TargetLanguage: "Traditional Chinese (Taiwan)",
			Temperature:    0.2,
			TimeoutSeconds: 45,
		},
		Illustration: IllustrationConfig{
			Enabled:             true,
			Model:               "dall-e-3",
			Size:                "1024x1024",
			ImagesDir:           "./static/images",
			URLPrefix:           "/images",
			RetentionPerAirport: 10,
			TimeoutSeconds:      90,
		},
		Pipeline: PipelineConfig{
			RetryBackoffMs: 2000,
		},
		Storage: StorageConfig{
			SQLitePath: "./data/co-atis.db",
		},
		Airports: []AirportConfig{
			{Code: "RCSS", Name: "Taipei Songshan Airport", StreamURL: "https://stream.twatc.net/RCSS_ATIS"},
			{Code: "RCTP", Name: "Taoyuan International Airport", StreamURL: "https://stream.twatc.net/RCTP_ATIS"},
			{Code: "RCKH", Name: "Kaohsiung International Airport", StreamURL: "https://stream.twatc.net/RCKH_ATIS"},
		},
	}
}

// Load reads the configuration file (optional), applies .env and
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	// A missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		// A file that lists airports replaces the default set entirely
		defaultAirports := cfg.Airports
		cfg.Airports = nil

		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
		if !md.IsDefined("airports") {
			cfg.Airports = defaultAirports
		}
	}

	cfg.applyEnv()

	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.APIKeyFile != "" {
		key, err := readKeyFile(cfg.OpenAI.APIKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.OpenAI.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables on top of the file values
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("CO_ATIS_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CO_ATIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CO_ATIS_CAPTURE_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			c.Capture.DurationSeconds = seconds
		}
	}
	if v := os.Getenv("CO_ATIS_TEMP_DIR"); v != "" {
		c.Capture.TempDir = v
	}
	if v := os.Getenv("CO_ATIS_IMAGES_DIR"); v != "" {
		c.Illustration.ImagesDir = v
	}

	// Per-airport stream overrides, e.g. RCTP_ATIS_URL
	for i := range c.Airports {
		if v := os.Getenv(c.Airports[i].Code + "_ATIS_URL"); v != "" {
			c.Airports[i].StreamURL = v
		}
	}
}

// readKeyFile returns the first non-empty, non-comment line of the file
func readKeyFile(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open api key file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read api key file: %w", err)
	}
	return "", nil
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Airports))
	for _, airport := range c.Airports {
		if seen[airport.Code] {
			return fmt.Errorf("invalid configuration: duplicate airport %s", airport.Code)
		}
		seen[airport.Code] = true
	}

	if write := time.Duration(c.Server.WriteTimeoutSeconds) * time.Second; write > 0 && write < c.PipelineBudget() {
		return fmt.Errorf("invalid configuration: server write timeout %s is shorter than the pipeline budget %s",
			write, c.PipelineBudget())
	}

	return nil
}

// PipelineBudget is the longest a single run can take: the sum of every
// stage timeout. The single retry runs inside its stage budget.
func (c *Config) PipelineBudget() time.Duration {
	budget := c.CaptureDuration() + c.CaptureGrace() +
		time.Duration(c.Transcription.TimeoutSeconds)*time.Second +
		time.Duration(c.Structuring.TimeoutSeconds)*time.Second
	if c.Illustration.Enabled {
		budget += time.Duration(c.Illustration.TimeoutSeconds) * time.Second
	}
	return budget
}

// AIConfigured reports whether an API key is available
func (c *Config) AIConfigured() bool {
	return c.OpenAI.APIKey != ""
}

// CaptureDuration returns the nominal capture window
func (c *Config) CaptureDuration() time.Duration {
	return time.Duration(c.Capture.DurationSeconds) * time.Second
}

// CaptureGrace returns the extra wall-clock allowance on top of the window
func (c *Config) CaptureGrace() time.Duration {
	return time.Duration(c.Capture.GraceSeconds) * time.Second
}

// ConnectTimeout returns the stream connect timeout
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Capture.ConnectTimeoutSeconds) * time.Second
}

// RetryBackoff returns the fixed delay before the single stage retry
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Pipeline.RetryBackoffMs) * time.Millisecond
}

// Addr returns the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
