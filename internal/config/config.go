// Package config provides configuration management for the PubMed search service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the PubMed search service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// PubMed contains the E-utilities access layer settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// PubMedConfig holds the E-utilities access layer configuration.
type PubMedConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url"`
	// Tool identifies this service to NCBI.
	Tool string `mapstructure:"tool"`
	// Contact is the required contact address sent with every request,
	// per the E-utilities usage policy.
	Contact string `mapstructure:"contact"`
	// APIKey is the NCBI API key. Loaded exclusively from the
	// PUBMEDSVC_PUBMED_API_KEY environment variable; raises the default
	// rate budget from 3 to 10 requests/second.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the retry ceiling for transient upstream failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base backoff delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// RateLimit overrides the requests-per-second budget.
	// Zero derives it from the API key (3 without, 10 with).
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the token bucket capacity. Zero follows the rate limit.
	Burst int `mapstructure:"burst"`
	// MaxResults is the default search page size.
	MaxResults int `mapstructure:"max_results"`
	// SummaryBatchSize caps PMIDs per efetch call.
	SummaryBatchSize int `mapstructure:"summary_batch_size"`
	// CacheDir enables the persistent cache tier when non-empty.
	CacheDir string `mapstructure:"cache_dir"`
	// CacheTTL is the response cache lifetime in seconds. Zero with no
	// cache_dir disables caching; zero with a cache_dir defaults to 86400.
	CacheTTL int `mapstructure:"cache_ttl"`
}

// CacheTTLDuration returns the cache TTL as a duration.
func (c *PubMedConfig) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// HTTPAddress returns the host:port for the HTTP server.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the host:port for the metrics server.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PUBMEDSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pubmed-search-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The API key is a secret and is loaded exclusively from the
	// environment; the field uses mapstructure:"-" so config files
	// cannot set it.
	cfg.PubMed.APIKey = os.Getenv("PUBMEDSVC_PUBMED_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// PubMed defaults
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.tool", "pubmed-search-service")
	v.SetDefault("pubmed.contact", "")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.max_retries", 2)
	v.SetDefault("pubmed.retry_delay", "500ms")
	v.SetDefault("pubmed.rate_limit", 0.0) // 0 derives from API key: 3 without, 10 with
	v.SetDefault("pubmed.burst", 0)
	v.SetDefault("pubmed.max_results", 20)
	v.SetDefault("pubmed.summary_batch_size", 200)
	v.SetDefault("pubmed.cache_dir", "")
	v.SetDefault("pubmed.cache_ttl", 0) // seconds; defaults to 86400 when cache_dir is set
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid server.metrics_port: %d", c.Server.MetricsPort)
	}
	if c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("server.metrics_port must differ from server.http_port")
	}

	if c.PubMed.Contact == "" {
		return errors.New("pubmed.contact is required (set PUBMEDSVC_PUBMED_CONTACT)")
	}
	if !strings.Contains(c.PubMed.Contact, "@") {
		return fmt.Errorf("pubmed.contact must be a contact address, got %q", c.PubMed.Contact)
	}

	if c.PubMed.BaseURL == "" {
		return errors.New("pubmed.base_url is required")
	}
	u, err := url.Parse(c.PubMed.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid pubmed.base_url: %q", c.PubMed.BaseURL)
	}

	if c.PubMed.RateLimit < 0 {
		return fmt.Errorf("pubmed.rate_limit must not be negative, got %f", c.PubMed.RateLimit)
	}
	if c.PubMed.MaxRetries < 0 {
		return fmt.Errorf("pubmed.max_retries must not be negative, got %d", c.PubMed.MaxRetries)
	}
	if c.PubMed.CacheTTL < 0 {
		return fmt.Errorf("pubmed.cache_ttl must not be negative, got %d", c.PubMed.CacheTTL)
	}
	if c.PubMed.SummaryBatchSize < 0 {
		return fmt.Errorf("pubmed.summary_batch_size must not be negative, got %d", c.PubMed.SummaryBatchSize)
	}

	return nil
}
