package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names read by Load.
const (
	EnvPrefix = "TALENTLENS_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// providerKeyEnv names the conventional credential variable per provider,
// consulted when model_api_key is unset.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TALENTLENS_CONFIG is set
//  3. env (prefix TALENTLENS_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TALENTLENS_MODEL_API_KEY -> model_api_key. Underscores are kept to
	// match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.ModelAPIKey == "" {
		if name, ok := providerKeyEnv[cfg.ModelProvider]; ok {
			cfg.ModelAPIKey = os.Getenv(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Addr) != "", "addr must not be empty")
	check(oneOf(strings.ToLower(c.LogLevel), "", "debug", "info", "warn", "warning", "error"), "unknown log_level %q", c.LogLevel)
	check(oneOf(strings.ToLower(c.LogFormat), "", "text", "json"), "unknown log_format %q", c.LogFormat)
	check(c.WriteTimeoutMS > 0, "write_timeout_ms must be positive")

	_, known := providerKeyEnv[c.ModelProvider]
	check(known, "unknown model_provider %q", c.ModelProvider)
	check(c.ModelMaxTokens > 0, "model_max_tokens must be positive")
	check(c.ModelTemperature >= 0 && c.ModelTemperature <= 2, "model_temperature must be within [0, 2]")
	check(c.ModelTimeoutMS > 0, "model_timeout_ms must be positive")
	check(c.RetryMaxAttempts >= 0, "retry_max_attempts must not be negative")
	check(c.RetryBaseDelayMS >= 0, "retry_base_delay_ms must not be negative")

	check(oneOf(c.StoreDriver, StoreSQLite, StoreMemory), "unknown store_driver %q", c.StoreDriver)
	check(c.StoreDriver != StoreSQLite || strings.TrimSpace(c.StorePath) != "", "store_path is required for the sqlite driver")
	check(c.RecordCapacity > 0, "record_capacity must be positive")
	check(c.MaxHistoryLimit > 0, "max_history_limit must be positive")
	check(c.BatchConcurrency > 0, "batch_concurrency must be positive")
	check(c.MaxBatchSize > 0, "max_batch_size must be positive")

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
