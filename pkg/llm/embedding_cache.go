package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// EmbeddingCacheConfig configures the redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	// Enabled toggles the cache. When disabled the wrapper is a pass-through.
	Enabled bool
	// TTL is the cache entry lifetime. Embeddings are deterministic for a
	// fixed model, so long TTLs are safe.
	TTL time.Duration
	// KeyPrefix namespaces cache keys.
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig returns the default cache configuration.
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// CachedEmbeddingProvider wraps an EmbeddingProvider with a redis cache.
// Re-ingesting the same document and repeated questions skip the embedding
// backend entirely on a hit. Cache failures degrade to the wrapped provider.
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	redis    *goredis.Client
	config   *EmbeddingCacheConfig
}

// NewCachedEmbeddingProvider creates a caching wrapper around provider.
func NewCachedEmbeddingProvider(
	provider EmbeddingProvider,
	redis *goredis.Client,
	config *EmbeddingCacheConfig,
) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		redis:    redis,
		config:   config,
	}
}

// cacheKey derives the cache key for a text from its SHA256 digest, scoped
// by the provider name so different embedding models never share entries.
func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + c.provider.Name() + ":" + hex.EncodeToString(hash[:])
}

// EmbedSingle generates an embedding for a single text, consulting the
// cache first.
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if !c.config.Enabled || c.redis == nil {
		return c.provider.EmbedSingle(ctx, text)
	}

	key := c.cacheKey(text)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var embedding []float32
		if err := json.Unmarshal(data, &embedding); err == nil {
			logger.Debugw("embedding cache hit", "text_length", len(text), "key", key)
			return embedding, nil
		}
		// Corrupted entry, drop it and recompute.
		logger.Warnw("failed to unmarshal cached embedding, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
	} else if !errors.Is(err, goredis.Nil) {
		logger.Warnw("redis get error, falling back to provider", "error", err.Error())
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, embedding)
	return embedding, nil
}

// Embed generates embeddings for multiple texts, fetching hits from the
// cache and batching only the misses to the wrapped provider.
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.config.Enabled || c.redis == nil {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string

	for i, text := range texts {
		data, err := c.redis.Get(ctx, c.cacheKey(text)).Bytes()
		if err == nil {
			var embedding []float32
			if err := json.Unmarshal(data, &embedding); err == nil {
				embeddings[i] = embedding
				continue
			}
			_ = c.redis.Del(ctx, c.cacheKey(text)).Err()
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		logger.Debugw("all embeddings served from cache", "total", len(texts))
		return embeddings, nil
	}

	logger.Debugw("embedding cache miss (batch)", "total", len(texts), "misses", len(missTexts))
	missEmbeddings, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(missEmbeddings) != len(missTexts) {
		return nil, errors.New("embedding provider returned mismatched batch size")
	}

	for i, idx := range missIndices {
		embeddings[idx] = missEmbeddings[i]
		c.store(ctx, c.cacheKey(missTexts[i]), missEmbeddings[i])
	}

	return embeddings, nil
}

// store writes an embedding to the cache, logging but swallowing failures.
func (c *CachedEmbeddingProvider) store(ctx context.Context, key string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warnw("failed to marshal embedding for caching", "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error(), "key", key)
	}
}

// Name returns the wrapped provider's name with a cache suffix.
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name() + "-cached"
}

// ClearCache deletes all cached embeddings under the configured prefix.
func (c *CachedEmbeddingProvider) ClearCache(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	logger.Infow("cleared embedding cache", "deleted_count", deleted)
	return nil
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
