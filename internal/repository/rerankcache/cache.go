// Package rerankcache caches LLM relevance evaluations in a key-value store.
// A cache entry maps passage positions to relevance scores for one exact
// question-over-passage-set evaluation, so repeated questions skip the LLM
// entirely. Cache failures are logged and treated as misses; the cache never
// fails a rerank.
package rerankcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/db"
	"github.com/hanwool-labs/docchat/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "rerank_cache:"

// DefaultTTL is how long cached relevance scores stay valid.
const DefaultTTL = 6 * time.Hour

// store is the consumer interface for the relevance cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores relevance score maps keyed by a question+passage fingerprint.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a relevance score cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Key fingerprints a question over a passage set. The passage id order does
// not matter: ids are sorted before hashing so the same set always yields the
// same key.
func (c *Cache) Key(question string, passageIDs []string) string {
	ids := make([]string, len(passageIDs))
	copy(ids, passageIDs)
	sort.Strings(ids)

	h := sha256.Sum256([]byte(question + "|" + strings.Join(ids, ",")))
	return cacheKeyPrefix + hex.EncodeToString(h[:])[:16]
}

// Get returns the cached relevance map for the key, or ok=false on a miss.
// Store errors and corrupt entries count as misses.
func (c *Cache) Get(ctx context.Context, key string) (map[int]float64, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached relevance scores", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return nil, false
	}

	var scores map[int]float64
	if err := json.Unmarshal(data, &scores); err != nil {
		c.logger.Warn("Failed to parse cached relevance scores", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return nil, false
	}

	c.incCache("hit")
	return scores, true
}

// Put stores a relevance map under the key with the configured TTL.
// Write failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, key string, scores map[int]float64) {
	data, err := json.Marshal(scores)
	if err != nil {
		c.logger.Warn("Failed to encode relevance scores", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache relevance scores", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
