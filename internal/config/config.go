package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "2s" or
// "500ms" instead of nanosecond integers.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Config holds runtime configuration for the report sink.
type Config struct {
	// HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// Log level: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// SQLite database path.
	DBPath string `yaml:"db_path"`

	// Ingestion queue capacity. Fixed at construction.
	QueueCapacity int `yaml:"queue_capacity"`

	// How long a submission waits for queue space before the caller is told
	// to back off and retry.
	EnqueueTimeout Duration `yaml:"enqueue_timeout"`

	// Worker pause after a failed persist before resuming the loop.
	PersistBackoff Duration `yaml:"persist_backoff"`

	// Maximum accepted request body size in bytes.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Pre-shared keys. Ingestion and admin are separate trust domains.
	IngestKey string `yaml:"ingest_key"`
	AdminKey  string `yaml:"admin_key"`

	// Admin query bounds.
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`

	// Export is truncated at this many envelopes.
	MaxExportItems int `yaml:"max_export_items"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		DBPath:          "reportsink.db",
		QueueCapacity:   1000,
		EnqueueTimeout:  Duration{2 * time.Second},
		PersistBackoff:  Duration{2 * time.Second},
		MaxBodyBytes:    10 * 1024 * 1024,
		DefaultPageSize: 50,
		MaxPageSize:     200,
		MaxExportItems:  1000,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	if c.IngestKey == "" {
		return errors.New("ingest_key is required")
	}
	if c.AdminKey == "" {
		return errors.New("admin_key is required")
	}
	if c.IngestKey == c.AdminKey {
		return errors.New("ingest_key and admin_key must differ")
	}
	if c.QueueCapacity <= 0 {
		return errors.New("queue_capacity must be positive")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return errors.New("page size bounds are inconsistent")
	}
	return nil
}
