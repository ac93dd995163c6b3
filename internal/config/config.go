// Package config loads the service configuration from YAML, a .env file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
)

// Whisper backends
const (
	BackendCLI  = "cli"
	BackendHTTP = "http"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port" validate:"min=1,max=65535"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"oneof=console json"`
	} `yaml:"logging"`

	Whisper struct {
		Backend        string   `yaml:"backend" validate:"oneof=cli http"`
		Command        []string `yaml:"command"`
		URL            string   `yaml:"url" validate:"omitempty,url"`
		Language       string   `yaml:"language"`
		Threads        int      `yaml:"threads" validate:"min=0"`
		TimeoutMinutes int      `yaml:"timeout_minutes" validate:"min=0"`
	} `yaml:"whisper"`

	Tiers struct {
		Catalog []transcription.Tier `yaml:"catalog" validate:"dive"`
		Offered []string             `yaml:"offered"`
		Default string               `yaml:"default"`
	} `yaml:"tiers"`

	Subtitle struct {
		PreviewLength   int  `yaml:"preview_length" validate:"min=1"`
		LegacyEndMillis bool `yaml:"legacy_end_millis"`
	} `yaml:"subtitle"`

	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds" validate:"min=1"`
	} `yaml:"cache"`

	Workers struct {
		Count     int `yaml:"count" validate:"min=1"`
		QueueSize int `yaml:"queue_size" validate:"min=1"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir" validate:"required"`
		OutputDir string `yaml:"output_dir" validate:"required"`
		Database  string `yaml:"database" validate:"required"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"min=1"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"min=1"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	YouTube struct {
		Enabled        bool `yaml:"enabled"`
		AutoInstall    bool `yaml:"auto_install"`
		TimeoutMinutes int  `yaml:"timeout_minutes" validate:"min=0"`
	} `yaml:"youtube"`

	Limits struct {
		MaxFileSizeMB      int `yaml:"max_file_size_mb" validate:"min=1"`
		MaxDurationMinutes int `yaml:"max_duration_minutes" validate:"min=0"`
	} `yaml:"limits"`
}

// envOverrides maps environment variables onto config fields.
var envOverrides = map[string]func(c *Config, v string) error{
	"TRANSCRIBER_HOST": func(c *Config, v string) error { c.Server.Host = v; return nil },
	"TRANSCRIBER_PORT": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRANSCRIBER_PORT: %w", err)
		}
		c.Server.Port = port
		return nil
	},
	"WHISPER_BACKEND":         func(c *Config, v string) error { c.Whisper.Backend = v; return nil },
	"WHISPER_URL":             func(c *Config, v string) error { c.Whisper.URL = v; return nil },
	"GDRIVE_CREDENTIALS_FILE": func(c *Config, v string) error { c.GoogleDrive.CredentialsFile = v; return nil },
	"LOG_LEVEL":               func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
}

// Load reads the YAML file at path, loads envFile into the process
// environment when it exists, applies overrides and defaults, and validates.
// A missing config file is not an error; defaults are used instead.
func Load(path, envFile string) (*Config, error) {
	var cfg Config

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	for key, apply := range envOverrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if err := apply(c, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Whisper.Backend == "" {
		c.Whisper.Backend = BackendCLI
	}
	if c.Whisper.TimeoutMinutes == 0 {
		c.Whisper.TimeoutMinutes = 30
	}
	if len(c.Tiers.Catalog) == 0 {
		c.Tiers.Catalog = transcription.DefaultTiers()
	}
	if c.Subtitle.PreviewLength == 0 {
		c.Subtitle.PreviewLength = subtitle.DefaultPreviewLength
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 1
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 100
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "outputs"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "transcripts.db"
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Transcripts"
	}
	if c.YouTube.TimeoutMinutes == 0 {
		c.YouTube.TimeoutMinutes = 30
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 200
	}
}

// Validate checks field constraints and that the tier selection is consistent.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("invalid config: tiers: %w", err)
	}
	return nil
}

// Catalog builds the tier catalog from the tiers section.
func (c *Config) Catalog() (*transcription.Catalog, error) {
	return transcription.NewCatalog(c.Tiers.Catalog, c.Tiers.Offered, c.Tiers.Default)
}

// CacheTTL returns the transcript cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// SubtitleOptions returns the formatter options.
func (c *Config) SubtitleOptions() subtitle.Options {
	return subtitle.Options{
		PreviewLength:   c.Subtitle.PreviewLength,
		LegacyEndMillis: c.Subtitle.LegacyEndMillis,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
