// Package providers selects a concrete llm.Provider from configuration.
package providers

import (
	"fmt"
	"net/http"

	"memoryengine/internal/config"
	"memoryengine/internal/llm"
	"memoryengine/internal/llm/anthropic"
	openaillm "memoryengine/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured provider name.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai", "groq":
		// groq speaks the OpenAI chat-completions wire format behind a
		// different base URL; no separate client is needed.
		return openaillm.New(cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
