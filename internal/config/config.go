// Package config loads this service's environment-driven options,
// layered over typed defaults grouped one struct per concern, bound
// through viper's environment layer instead of a YAML loader (this
// service has no on-disk config tree, only env vars).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DatabaseConfig holds Postgres connection and pool settings.
type DatabaseConfig struct {
	Type            string
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LLMConfig holds the OpenRouter-compatible gateway settings.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	HTTPReferer    string
	XTitle         string
	RequestTimeout time.Duration
}

// TaskerConfig holds the polling-scheduler settings.
type TaskerConfig struct {
	PollInterval time.Duration
	PollJitter   time.Duration
	WorkerCount  int
}

// AdminConfig holds the default administrator seed identity.
type AdminConfig struct {
	Login    string
	Email    string
	Password string
}

// Config is the umbrella object returned by Load: one struct per
// concern, assembled once at startup.
type Config struct {
	Database   DatabaseConfig
	LLM        LLMConfig
	Tasker     TaskerConfig
	Admin      AdminConfig
	SaltRounds int
	HTTPPort   int
}

// Load reads an optional .env file from configDir, then binds every
// supported environment variable through viper, applying the documented
// defaults, and validates the result. Validation failures are fatal —
// the process should not start with a broken configuration.
func Load(configDir string) (*Config, error) {
	// Missing .env is expected in most deployments (env vars are injected
	// directly by the supervisor); godotenv.Load is best-effort here.
	_ = godotenv.Load(configDir + "/.env")

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{
			Type:            v.GetString("db_type"),
			Host:            v.GetString("db_host"),
			Port:            v.GetInt("db_port"),
			Username:        v.GetString("db_username"),
			Password:        v.GetString("db_password"),
			Database:        v.GetString("db_database"),
			SSLMode:         sslMode(v.GetBool("db_ssl")),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("db_conn_max_idle_time"),
		},
		LLM: LLMConfig{
			BaseURL:        v.GetString("openrouter_api_base_url"),
			APIKey:         v.GetString("openrouter_api_key"),
			HTTPReferer:    v.GetString("openrouter_http_referer"),
			XTitle:         v.GetString("openrouter_x_title"),
			RequestTimeout: v.GetDuration("llm_request_timeout"),
		},
		Tasker: TaskerConfig{
			PollInterval: v.GetDuration("tasker_poll_interval"),
			PollJitter:   v.GetDuration("tasker_poll_jitter"),
			WorkerCount:  v.GetInt("tasker_worker_count"),
		},
		Admin: AdminConfig{
			Login:    v.GetString("admin_default_login"),
			Email:    v.GetString("admin_default_email"),
			Password: v.GetString("admin_default_password"),
		},
		SaltRounds: v.GetInt("salt_rounds"),
		HTTPPort:   v.GetInt("http_port"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_ssl", false)
	v.SetDefault("db_synchronize", false)
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "1h")
	v.SetDefault("db_conn_max_idle_time", "15m")

	v.SetDefault("openrouter_api_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm_request_timeout", "60s")

	v.SetDefault("tasker_poll_interval", "5000ms")
	v.SetDefault("tasker_poll_jitter", "0ms")
	v.SetDefault("tasker_worker_count", 1)

	v.SetDefault("salt_rounds", 10)
	v.SetDefault("http_port", 8080)
}

func sslMode(enabled bool) string {
	if enabled {
		return "require"
	}
	return "disable"
}

func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return NewValidationError("OPENROUTER_API_KEY", fmt.Errorf("required"))
	}
	if c.SaltRounds < 4 {
		return NewValidationError("SALT_ROUNDS", fmt.Errorf("must be at least 4, got %d", c.SaltRounds))
	}
	if c.Tasker.WorkerCount < 1 {
		return NewValidationError("TASKER_WORKER_COUNT", fmt.Errorf("must be at least 1, got %d", c.Tasker.WorkerCount))
	}
	if c.Tasker.PollInterval <= 0 {
		return NewValidationError("TASKER_POLL_INTERVAL", fmt.Errorf("must be positive"))
	}
	return nil
}
