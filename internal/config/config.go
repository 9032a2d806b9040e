// Package config defines service configuration and its loading.
package config

import (
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// WriteTimeoutMS bounds a whole response, model calls included.
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// ModelProvider is openai or anthropic. Without ModelAPIKey no provider is called.
	ModelProvider    string  `koanf:"model_provider"`
	ModelAPIKey      string  `koanf:"model_api_key"`
	ModelName        string  `koanf:"model_name"`
	ModelBaseURL     string  `koanf:"model_base_url"`
	ModelMaxTokens   int     `koanf:"model_max_tokens"`
	ModelTemperature float64 `koanf:"model_temperature"`
	ModelTimeoutMS   int     `koanf:"model_timeout_ms"`

	// RetryMaxAttempts is the number of extra attempts after a retryable
	// provider failure. Zero degrades on the first failure.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`

	StoreDriver    string `koanf:"store_driver"`
	StorePath      string `koanf:"store_path"`
	RecordCapacity int    `koanf:"record_capacity"`

	// MaxHistoryLimit caps GET .../history?limit.
	MaxHistoryLimit  int `koanf:"max_history_limit"`
	BatchConcurrency int `koanf:"batch_concurrency"`
	MaxBatchSize     int `koanf:"max_batch_size"`

	// SubjectsPath points at a YAML seed; empty uses the built-in seed.
	SubjectsPath string `koanf:"subjects_path"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":8080",
		WriteTimeoutMS:   90_000,
		ModelProvider:    "openai",
		ModelName:        "gpt-4o-mini",
		ModelMaxTokens:   1024,
		ModelTemperature: 0.2,
		ModelTimeoutMS:   30_000,
		RetryMaxAttempts: 0,
		RetryBaseDelayMS: 500,
		StoreDriver:      StoreSQLite,
		StorePath:        "talentlens.db",
		RecordCapacity:   1000,
		MaxHistoryLimit:  100,
		BatchConcurrency: 1,
		MaxBatchSize:     50,
	}
}

// WriteTimeout returns WriteTimeoutMS as a duration.
func (c *Config) WriteTimeout() time.Duration { return ms(c.WriteTimeoutMS) }

// ModelTimeout returns ModelTimeoutMS as a duration.
func (c *Config) ModelTimeout() time.Duration { return ms(c.ModelTimeoutMS) }

// RetryBaseDelay returns RetryBaseDelayMS as a duration.
func (c *Config) RetryBaseDelay() time.Duration { return ms(c.RetryBaseDelayMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
