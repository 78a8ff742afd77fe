package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables (BIBLIOTECA_ prefix) take precedence over values from
// the config file, which takes precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("biblioteca")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.nueva-biblioteca")

	v.SetEnvPrefix("BIBLIOTECA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8525)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.path", "")

	v.SetDefault("queue.max_concurrent", 2)
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("queue.default_retry_delay", "60s")
	v.SetDefault("queue.reap_interval", "1h")
	v.SetDefault("queue.retention", "168h")
	v.SetDefault("queue.stale_age", "1h")

	v.SetDefault("library.roots", []string{})
	v.SetDefault("library.extensions", []string{".mp3", ".flac", ".m4a", ".ogg"})

	v.SetDefault("batch.chunk_size", 10)
	v.SetDefault("batch.workers", 2)
}
