// Package config provides centralized configuration management for the pipeline.
// Settings come from an optional YAML file with environment variable overrides
// and are validated on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can be configured via environment variables.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SourceConfig holds settings for retrieving the inspection results file.
type SourceConfig struct {
	// URL is the download location of the published CSV
	URL string `yaml:"url" env:"SOURCE_URL" env-default:"https://data.cityofnewyork.us/api/views/43nn-pn8j/rows.csv?accessType=DOWNLOAD"`

	// Path is a local file used instead of downloading when set
	Path string `yaml:"path" env:"SOURCE_PATH"`

	// Encoding of the source file: utf-8 or windows-1252 (default: utf-8)
	Encoding string `yaml:"encoding" env:"SOURCE_ENCODING" env-default:"utf-8"`

	// FetchTimeout bounds the download (default: 10m)
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"SOURCE_FETCH_TIMEOUT" env-default:"10m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the sink: postgres, mysql or sqlite (default: postgres)
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`

	// URL is the connection string (required).
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"-" env:"DATABASE_URL,DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`

	// AutoMigrate applies schema migrations before each run (default: true)
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// PipelineConfig holds settings for the normalize and load stages.
type PipelineConfig struct {
	// DataDir holds the downloaded file, entity streams and file checkpoints (default: data)
	DataDir string `yaml:"data_dir" env:"DATA_DIR" env-default:"data"`

	// CheckpointBackend is where completion markers live: file or database (default: file)
	CheckpointBackend string `yaml:"checkpoint_backend" env:"CHECKPOINT_BACKEND" env-default:"file"`

	// OrderCheck is the input ordering check: strict, identifier or off (default: strict)
	OrderCheck string `yaml:"order_check" env:"ORDER_CHECK" env-default:"strict"`

	// LoadParallelism is how many tables load at once (default: 1)
	LoadParallelism int `yaml:"load_parallelism" env:"LOAD_PARALLELISM" env-default:"1"`

	// RestaurantBatchSize is rows per restaurant upsert (default: 2000)
	RestaurantBatchSize int `yaml:"restaurant_batch_size" env:"RESTAURANT_BATCH_SIZE" env-default:"2000"`

	// InspectionBatchSize is rows per inspection insert (default: 2000)
	InspectionBatchSize int `yaml:"inspection_batch_size" env:"INSPECTION_BATCH_SIZE" env-default:"2000"`

	// ViolationBatchSize is rows per violation insert (default: 5000)
	ViolationBatchSize int `yaml:"violation_batch_size" env:"VIOLATION_BATCH_SIZE" env-default:"5000"`

	// Timeout bounds a whole run (default: 1h)
	Timeout time.Duration `yaml:"timeout" env:"PIPELINE_TIMEOUT" env-default:"1h"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" env-default:"8080"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 30s)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" env-default:"30s"`
}

// SecurityConfig holds settings for the operations API.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `yaml:"require_api_key" env:"REQUIRE_API_KEY" env-default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `yaml:"-" env:"API_KEYS" env-separator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
