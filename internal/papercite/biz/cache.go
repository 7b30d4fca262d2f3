package biz

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

// AnswerCacheConfig configures the redis-backed answer cache.
type AnswerCacheConfig struct {
	// Enabled toggles the cache.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces cache keys.
	KeyPrefix string
}

// DefaultAnswerCacheConfig returns the default cache configuration.
func DefaultAnswerCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "papercite:answer:",
	}
}

// cachedAnswer wraps an Answer with the verification report so a cache
// hit reproduces the full Ask result.
type cachedAnswer struct {
	Answer       *Answer             `json:"answer"`
	Verification *VerificationReport `json:"verification"`
}

// AnswerCache caches completed answers keyed by question and ask scope.
// Entries are only written for delivered answers, so a cache hit always
// carries verified citations.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates an answer cache.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = DefaultAnswerCacheConfig()
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey hashes the question together with the ask scope, since the
// same question under different filters or overrides has different
// answers.
func (c *AnswerCache) cacheKey(question, scope string) string {
	hash := sha256.Sum256([]byte(scope + "\x00" + question))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached answer for a question, or (nil, nil) on a miss.
func (c *AnswerCache) Get(ctx context.Context, question, scope string) (*Answer, *VerificationReport, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil, nil
	}

	key := c.cacheKey(question, scope)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil, nil
		}
		logger.Warnw("failed to get from answer cache", "error", err.Error(), "key", key)
		return nil, nil, err
	}

	var cached cachedAnswer
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warnw("failed to unmarshal cached answer, deleting", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, nil, nil
	}

	logger.Infow("answer cache hit", "key", key)
	return cached.Answer, cached.Verification, nil
}

// Set writes a delivered answer to the cache. Failures are logged, never
// fatal.
func (c *AnswerCache) Set(ctx context.Context, question, scope string, answer *Answer, report *VerificationReport) {
	if !c.config.Enabled || c.redis == nil {
		return
	}

	data, err := json.Marshal(cachedAnswer{Answer: answer, Verification: report})
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return
	}

	key := c.cacheKey(question, scope)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "error", err.Error(), "key", key)
	}
}

// InvalidateAll drops every cached answer. Called after ingestion or
// deletion since any corpus change can change any answer.
func (c *AnswerCache) InvalidateAll(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cached answer", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	logger.Infow("answer cache invalidated", "deleted_count", deleted)
	return nil
}
