package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration loaded from config.toml.
// Environment variables override file values during resolution (see env.go).
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Notes   NotesConfig   `toml:"notes"`
	Logging LoggingConfig `toml:"logging"`
	Ingest  IngestConfig  `toml:"ingest"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// NotesConfig controls where task artifacts live.
type NotesConfig struct {
	OutputDir string `toml:"output_dir"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "text", "json", or "" for auto
}

// IngestConfig controls the background ingestion worker pool.
type IngestConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Defaults applied when the config file is absent or leaves fields unset.
const (
	defaultListen    = "127.0.0.1:8483"
	defaultWorkers   = 2
	defaultQueueSize = 32
)

// Load reads the TOML config at path and applies defaults. A missing file is
// not an error: the zero config plus defaults is returned, matching the
// first-run experience.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}

	if c.Notes.OutputDir == "" {
		c.Notes.OutputDir = DefaultNoteDir()
	}

	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = defaultWorkers
	}

	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = defaultQueueSize
	}
}
