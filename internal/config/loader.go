package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "flapd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.CORSOrigin, "FLAPD_CORS_ORIGIN")

	setString(&cfg.Providers.Grok.APIKey, "GROK_API_KEY")
	setString(&cfg.Providers.Grok.BaseURL, "FLAPD_GROK_BASE_URL")
	setString(&cfg.Providers.Grok.Model, "FLAPD_GROK_MODEL")
	setDuration(&cfg.Providers.Grok.Timeout, "FLAPD_GROK_TIMEOUT")
	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenAI.BaseURL, "FLAPD_OPENAI_BASE_URL")
	setString(&cfg.Providers.OpenAI.Model, "FLAPD_OPENAI_MODEL")
	setDuration(&cfg.Providers.OpenAI.Timeout, "FLAPD_OPENAI_TIMEOUT")
	setString(&cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Providers.Gemini.BaseURL, "FLAPD_GEMINI_BASE_URL")
	setString(&cfg.Providers.Gemini.Model, "FLAPD_GEMINI_MODEL")
	setDuration(&cfg.Providers.Gemini.Timeout, "FLAPD_GEMINI_TIMEOUT")

	setString(&cfg.Search.BraveAPIKey, "BRAVE_SEARCH_API_KEY")
	setInt(&cfg.Agent.MaxTurns, "FLAPD_AGENT_MAX_TURNS")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FLAPD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FLAPD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FLAPD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FLAPD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FLAPD_PG_HEALTH_CHECK")

	setString(&cfg.Identity.APIKey, "IDENTITY_API_KEY")
	setDuration(&cfg.Identity.CacheTTL, "FLAPD_IDENTITY_CACHE_TTL")

	setString(&cfg.Logging.Level, "FLAPD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FLAPD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FLAPD_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "FLAPD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FLAPD_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "FLAPD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "FLAPD_RATE_BURST")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Agent.MaxTurns < 1 {
		return errors.New("agent.max_turns must be >= 1")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
