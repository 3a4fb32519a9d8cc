package main

import (
	"log/slog"

	"github.com/flap-ai/flapd/internal/adapter/brave"
	"github.com/flap-ai/flapd/internal/adapter/duckduckgo"
	"github.com/flap-ai/flapd/internal/adapter/gemini"
	"github.com/flap-ai/flapd/internal/adapter/grok"
	"github.com/flap-ai/flapd/internal/adapter/openai"
	"github.com/flap-ai/flapd/internal/config"
	"github.com/flap-ai/flapd/internal/port/provider"
	"github.com/flap-ai/flapd/internal/port/websearch"
)

// buildRegistry assembles the provider registry from the configured API
// keys. A provider without a key is simply absent; an empty registry is
// valid and surfaces per-request as "no chat provider configured".
func buildRegistry(cfg config.Providers, logger *slog.Logger) *provider.Registry {
	var providers []provider.Provider

	if cfg.Grok.APIKey != "" {
		providers = append(providers, grok.New(cfg.Grok.APIKey, grokOptions(cfg.Grok)...))
	}
	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, openai.New(cfg.OpenAI.APIKey, openaiOptions(cfg.OpenAI)...))
	}
	if cfg.Gemini.APIKey != "" {
		providers = append(providers, gemini.New(cfg.Gemini.APIKey, geminiOptions(cfg.Gemini)...))
	}

	registry := provider.NewRegistry(providers...)
	logger.Info("providers configured", "ids", registry.IDs())
	return registry
}

func grokOptions(cfg config.Provider) []grok.Option {
	var opts []grok.Option
	if cfg.BaseURL != "" {
		opts = append(opts, grok.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, grok.WithModel(cfg.Model))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, grok.WithTimeout(cfg.Timeout))
	}
	return opts
}

func openaiOptions(cfg config.Provider) []openai.Option {
	var opts []openai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(cfg.Timeout))
	}
	return opts
}

func geminiOptions(cfg config.Provider) []gemini.Option {
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, gemini.WithModel(cfg.Model))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gemini.WithTimeout(cfg.Timeout))
	}
	return opts
}

// buildEngines assembles the web search engines: Brave when a key is
// configured, DuckDuckGo always as the keyless fallback.
func buildEngines(cfg config.Search) websearch.Engines {
	engines := websearch.Engines{Keyless: duckduckgo.New()}
	if cfg.BraveAPIKey != "" {
		engines.Ranked = brave.New(cfg.BraveAPIKey)
	}
	return engines
}
