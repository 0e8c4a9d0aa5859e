package embedding

import (
	"net/http"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"memoryengine/internal/config"
)

// Build resolves a cache-wrapped Provider from configuration. redisClient
// may be nil; the cache then degrades to pass-through.
func Build(cfg config.EmbedConfig, redisClient *redis.Client, httpClient *http.Client) Provider {
	var inner Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		inner = NewLocalProvider(cfg.Dimensions)
	default: // "", "openai"
		inner = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, httpClient)
	}
	return NewCachedProvider(inner, redisClient, cfg.CacheTTL, cfg.RatePerMin)
}
