package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoryengine/internal/config"
)

// NewVectorStore resolves the configured ANN backend. "memory" is intended
// for tests; "qdrant" and "pgvector" are the two production backends named
// in the configuration surface.
func NewVectorStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (VectorStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Qdrant.Backend)) {
	case "", "qdrant":
		dsn := fmt.Sprintf("http://%s", cfg.Qdrant.Addr)
		if cfg.Qdrant.UseTLS {
			dsn = fmt.Sprintf("https://%s", cfg.Qdrant.Addr)
		}
		if cfg.Qdrant.APIKey != "" {
			dsn = dsn + "?api_key=" + cfg.Qdrant.APIKey
		}
		return NewQdrantVector(dsn, cfg.Qdrant.Collection, cfg.Embed.Dimensions, "cosine")
	case "pgvector", "postgres", "pg":
		if pool == nil {
			return nil, fmt.Errorf("pgvector backend requires a postgres pool")
		}
		return NewPostgresVector(pool, cfg.Embed.Dimensions, "cosine"), nil
	case "memory":
		return NewMemoryVector(), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Qdrant.Backend)
	}
}
