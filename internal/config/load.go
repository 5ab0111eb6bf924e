package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file; both override defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Missing config file is fine: env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CARDFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets and connection endpoints deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("storage.url_ttl", "15m")

	v.SetDefault("queue.stream", "cardforge:jobs")
	v.SetDefault("queue.group", "workers")
	v.SetDefault("queue.max_deliveries", 5)
	v.SetDefault("queue.redelivery_min_idle", "5m")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("pipeline.chunk_size", 500)
	v.SetDefault("pipeline.chunk_overlap", 100)
	v.SetDefault("pipeline.concurrency", 4)

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.max_tasks_per_worker", 50)
	v.SetDefault("worker.soft_time_limit", "115m")
	v.SetDefault("worker.hard_time_limit", "2h")

	v.SetDefault("quota.monthly_card_limit", 1000)
}
