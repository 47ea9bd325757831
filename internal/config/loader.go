package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Load reads configuration from the YAML file at path with environment
// variable overrides. A missing file is not an error; the environment and
// defaults are used alone. The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config load %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	default:
		return nil, fmt.Errorf("config load %s: %w", path, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Source validation
	if c.Source.URL == "" && c.Source.Path == "" {
		errs = append(errs, "one of SOURCE_URL or SOURCE_PATH is required")
	}
	validEncodings := map[string]bool{"utf-8": true, "utf8": true, "windows-1252": true, "cp1252": true}
	if !validEncodings[strings.ToLower(c.Source.Encoding)] {
		errs = append(errs, fmt.Sprintf("SOURCE_ENCODING (%q) must be one of: utf-8, windows-1252", c.Source.Encoding))
	}
	if c.Source.FetchTimeout <= 0 {
		errs = append(errs, "SOURCE_FETCH_TIMEOUT must be positive")
	}

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	validDrivers := map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	if !validDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, mysql, sqlite", c.Database.Driver))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Pipeline validation
	if c.Pipeline.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}
	validBackends := map[string]bool{"file": true, "database": true}
	if !validBackends[strings.ToLower(c.Pipeline.CheckpointBackend)] {
		errs = append(errs, fmt.Sprintf("CHECKPOINT_BACKEND (%q) must be one of: file, database", c.Pipeline.CheckpointBackend))
	}
	validChecks := map[string]bool{"strict": true, "identifier": true, "off": true}
	if !validChecks[strings.ToLower(c.Pipeline.OrderCheck)] {
		errs = append(errs, fmt.Sprintf("ORDER_CHECK (%q) must be one of: strict, identifier, off", c.Pipeline.OrderCheck))
	}
	if c.Pipeline.LoadParallelism <= 0 {
		errs = append(errs, "LOAD_PARALLELISM must be positive")
	}
	if c.Pipeline.RestaurantBatchSize <= 0 {
		errs = append(errs, "RESTAURANT_BATCH_SIZE must be positive")
	}
	if c.Pipeline.InspectionBatchSize <= 0 {
		errs = append(errs, "INSPECTION_BATCH_SIZE must be positive")
	}
	if c.Pipeline.ViolationBatchSize <= 0 {
		errs = append(errs, "VIOLATION_BATCH_SIZE must be positive")
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, "PIPELINE_TIMEOUT must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Source: {URL: %q, Path: %q, Encoding: %q}, ",
		c.Source.URL, c.Source.Path, c.Source.Encoding))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Pipeline: {DataDir: %q, Checkpoints: %q, OrderCheck: %q, Parallelism: %d}, ",
		c.Pipeline.DataDir, c.Pipeline.CheckpointBackend, c.Pipeline.OrderCheck, c.Pipeline.LoadParallelism))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Security: {TrustedProxies: %d, RequireAPIKey: %t, APIKeys: [MASKED]}, ",
		len(c.Security.TrustedProxies), c.Security.RequireAPIKey))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
