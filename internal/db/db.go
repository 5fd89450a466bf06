package db

import (
	"context"
	"time"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// Store is the database facade combining all sub-interfaces. Consumers should
// depend on the narrow sub-interfaces they actually use.
type Store interface {
	Pinger
	KVStore
	HashReader
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations with optional expiry.
// It backs the rerank-score and corpus-context caches.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashReader reads hash fields. The feedback store keeps per-passage vote
// counters as hash fields next to the indexed passage data.
type HashReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Searcher provides vector and listing queries over the passage index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchList(ctx context.Context, index string, pred domain.Predicate, offset, limit int, fields []string) (*SearchResult, error)
	SearchCount(ctx context.Context, index string, pred domain.Predicate) (int, error)
}

// KNNQuery describes a nearest-neighbor search over stored passage vectors.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	Predicate    domain.Predicate
	ReturnFields []string
}

// SearchEntry is one matched key with its distance and returned fields.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}

// SearchResult holds FT.SEARCH matches.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}
