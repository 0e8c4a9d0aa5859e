package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"memoryengine/internal/observability"
)

// CachedProvider wraps a Provider with a Redis content-hash cache and a
// token-bucket rate limiter, so repeated embeddings of the same memory
// content (a common occurrence across canonicalization retries and
// consolidation) never re-hit the upstream provider.
type CachedProvider struct {
	inner   Provider
	redis   *redis.Client
	ttl     time.Duration
	limiter *rate.Limiter
}

// NewCachedProvider wraps inner with a Redis cache keyed on hash(provider,
// model, text) and a limiter allowing ratePerMinute embed calls per minute.
// redisClient may be nil, in which case caching is skipped (fail-open).
func NewCachedProvider(inner Provider, redisClient *redis.Client, ttl time.Duration, ratePerMinute int) *CachedProvider {
	if ratePerMinute <= 0 {
		ratePerMinute = 3000
	}
	limit := rate.Limit(float64(ratePerMinute) / 60.0)
	return &CachedProvider{
		inner:   inner,
		redis:   redisClient,
		ttl:     ttl,
		limiter: rate.NewLimiter(limit, ratePerMinute),
	}
}

func (c *CachedProvider) Name() string  { return c.inner.Name() }
func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }

// Embed looks up each text in the cache, embeds the misses in one batch
// through the rate limiter, and writes the fresh vectors back.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if c.redis == nil {
		if err := c.embedMissesInto(ctx, texts, nil, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	log := observability.LoggerWithTrace(ctx)
	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warn().Err(err).Msg("embed_cache_mget_failed")
		cached = make([]interface{}, len(texts))
	}

	missIdx := make([]int, 0, len(texts))
	for i, v := range cached {
		s, ok := v.(string)
		if !ok || s == "" {
			missIdx = append(missIdx, i)
			continue
		}
		vec, decodeErr := decodeVector(s)
		if decodeErr != nil {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}

	if err := c.embedMissesInto(ctx, texts, missIdx, out); err != nil {
		return nil, err
	}

	if len(missIdx) > 0 {
		pipe := c.redis.Pipeline()
		for _, i := range missIdx {
			if encoded, err := encodeVector(out[i]); err == nil {
				pipe.Set(ctx, keys[i], encoded, c.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("embed_cache_write_failed")
		}
	}
	return out, nil
}

// embedMissesInto embeds the texts at missIdx (or all texts when missIdx is
// nil) through the rate limiter and writes results into out in place.
func (c *CachedProvider) embedMissesInto(ctx context.Context, texts []string, missIdx []int, out [][]float32) error {
	idx := missIdx
	if idx == nil {
		idx = make([]int, len(texts))
		for i := range texts {
			idx[i] = i
		}
	}
	if len(idx) == 0 {
		return nil
	}
	if err := c.limiter.WaitN(ctx, len(idx)); err != nil {
		return err
	}
	batch := make([]string, len(idx))
	for j, i := range idx {
		batch[j] = texts[i]
	}
	vecs, err := c.inner.Embed(ctx, batch)
	if err != nil {
		return err
	}
	for j, i := range idx {
		out[i] = vecs[j]
	}
	return nil
}

func (c *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Name() + "\x00" + text))
	return fmt.Sprintf("embed:%x", sum)
}

func encodeVector(v []float32) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeVector(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
