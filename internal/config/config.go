// Package config loads the memory engine's runtime configuration from the
// environment, following the env-driven idiom the rest of this tree uses
// rather than a YAML/TOML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is threaded through main via constructor injection; there is no
// global config singleton.
type Config struct {
	Environment string

	LLM   LLMConfig
	Embed EmbedConfig

	Postgres PostgresConfig
	Qdrant   QdrantConfig
	Redis    RedisConfig

	Retrieval RetrievalConfig
	Lifecycle LifecycleConfig

	HTTPAddr string
}

type LLMConfig struct {
	Provider  string // openai|anthropic|groq
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int64
}

type EmbedConfig struct {
	Provider   string // openai|local
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	CacheTTL   time.Duration
	RatePerMin int
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

type QdrantConfig struct {
	Backend    string // qdrant|pgvector|memory
	Addr       string
	Collection string
	APIKey     string
	UseTLS     bool
}

type RedisConfig struct {
	Addr string
	DB   int
}

type RetrievalConfig struct {
	TopK                int
	ConfidenceThreshold float64
	DedupThreshold      float64
	ColdSimilarityMin   float64
}

type LifecycleConfig struct {
	EntityTTLDays      int
	CommitmentGraceDays int
	DecayChangeFloor   float64
	ConsolidateSimilarity float64
	Interval           time.Duration
}

// Load reads configuration from the environment. .env values (if present)
// override the process environment, the same way the teacher's loader does,
// so local development can pin values deterministically.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Environment: firstNonEmpty(getenv("ENVIRONMENT"), "development"),
		HTTPAddr:    firstNonEmpty(getenv("HTTP_ADDR"), ":8090"),
		LLM: LLMConfig{
			Provider:  firstNonEmpty(getenv("LLM_PROVIDER"), "openai"),
			Model:     firstNonEmpty(getenv("LLM_MODEL"), "gpt-4o-mini"),
			APIKey:    getenv("LLM_API_KEY"),
			BaseURL:   getenv("LLM_BASE_URL"),
			MaxTokens: getenvInt64("LLM_MAX_TOKENS", 1024),
		},
		Embed: EmbedConfig{
			Provider:   firstNonEmpty(getenv("EMBED_PROVIDER"), "openai"),
			Model:      firstNonEmpty(getenv("EMBED_MODEL"), "text-embedding-3-small"),
			APIKey:     firstNonEmpty(getenv("EMBED_API_KEY"), getenv("LLM_API_KEY")),
			BaseURL:    getenv("EMBED_BASE_URL"),
			Dimensions: getenvInt("EMBED_DIMENSIONS", 1536),
			CacheTTL:   getenvDuration("EMBED_CACHE_TTL", 24*time.Hour),
			RatePerMin: getenvInt("EMBED_RATE_PER_MINUTE", 3000),
		},
		Postgres: PostgresConfig{
			DSN:      firstNonEmpty(getenv("POSTGRES_DSN"), "postgres://localhost:5432/memoryengine?sslmode=disable"),
			MaxConns: int32(getenvInt("POSTGRES_MAX_CONNS", 8)),
		},
		Qdrant: QdrantConfig{
			Backend:    firstNonEmpty(getenv("VECTOR_BACKEND"), "qdrant"),
			Addr:       firstNonEmpty(getenv("QDRANT_ADDR"), "localhost:6334"),
			Collection: firstNonEmpty(getenv("QDRANT_COLLECTION"), "memories"),
			APIKey:     getenv("QDRANT_API_KEY"),
			UseTLS:     getenvBool("QDRANT_TLS", false),
		},
		Redis: RedisConfig{
			Addr: firstNonEmpty(getenv("REDIS_ADDR"), "localhost:6379"),
			DB:   getenvInt("REDIS_DB", 0),
		},
		Retrieval: RetrievalConfig{
			TopK:                getenvInt("RETRIEVAL_TOP_K", 10),
			ConfidenceThreshold: getenvFloat("RETRIEVAL_CONFIDENCE_THRESHOLD", 0.7),
			DedupThreshold:      getenvFloat("RETRIEVAL_DEDUP_THRESHOLD", 0.95),
			ColdSimilarityMin:   getenvFloat("RETRIEVAL_COLD_SIMILARITY_MIN", 0.75),
		},
		Lifecycle: LifecycleConfig{
			EntityTTLDays:         getenvInt("LIFECYCLE_ENTITY_TTL_DAYS", 180),
			CommitmentGraceDays:   getenvInt("LIFECYCLE_COMMITMENT_GRACE_DAYS", 7),
			DecayChangeFloor:      getenvFloat("LIFECYCLE_DECAY_CHANGE_FLOOR", 0.05),
			ConsolidateSimilarity: getenvFloat("LIFECYCLE_CONSOLIDATE_SIMILARITY", 0.90),
			Interval:              getenvDuration("LIFECYCLE_INTERVAL", time.Hour),
		},
	}
	return cfg, nil
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getenvInt(key string, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
