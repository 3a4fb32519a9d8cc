// Package config provides hierarchical configuration loading for flapd.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the flapd service.
type Config struct {
	Server    Server    `yaml:"server"`
	Providers Providers `yaml:"providers"`
	Search    Search    `yaml:"search"`
	Agent     Agent     `yaml:"agent"`
	Postgres  Postgres  `yaml:"postgres"`
	Identity  Identity  `yaml:"identity"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Rate      Rate      `yaml:"rate"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Provider holds one chat backend's credentials and overrides. A provider is
// active when its API key is non-empty.
type Provider struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Providers holds the three chat backends.
type Providers struct {
	Grok   Provider `yaml:"grok"`
	OpenAI Provider `yaml:"openai"`
	Gemini Provider `yaml:"gemini"`
}

// Search holds web search engine configuration. DuckDuckGo needs no key and
// is always available as the fallback engine.
type Search struct {
	BraveAPIKey string `yaml:"brave_api_key"`
}

// Agent holds search agent configuration.
type Agent struct {
	MaxTurns int `yaml:"max_turns"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN disables
// conversation persistence.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// Identity holds token verification configuration. An empty API key disables
// auth; every request then runs as the anonymous user.
type Identity struct {
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for search and identity calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// disables export.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8000",
			CORSOrigin: "*",
		},
		Providers: Providers{
			Grok:   Provider{Model: "grok-3", Timeout: 60 * time.Second},
			OpenAI: Provider{Model: "gpt-4o", Timeout: 60 * time.Second},
			Gemini: Provider{Model: "gemini-2.0-flash", Timeout: 60 * time.Second},
		},
		Agent: Agent{
			MaxTurns: 5,
		},
		Postgres: Postgres{
			MaxConns:        15,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Identity: Identity{
			CacheTTL: 5 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "flapd",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
		},
	}
}

// AnyProvider reports whether at least one chat backend has an API key.
func (p Providers) AnyProvider() bool {
	return p.Grok.APIKey != "" || p.OpenAI.APIKey != "" || p.Gemini.APIKey != ""
}
