package rerankcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/db"
)

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestCache(t *testing.T) (*Cache, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	return New(ms, 0, nil, zap.NewNop()), ms
}

func TestKey_OrderIndependent(t *testing.T) {
	c, _ := newTestCache(t)

	k1 := c.Key("연차는 몇 일인가요?", []string{"chunk:2", "chunk:1", "chunk:3"})
	k2 := c.Key("연차는 몇 일인가요?", []string{"chunk:3", "chunk:1", "chunk:2"})
	if k1 != k2 {
		t.Errorf("expected identical keys for reordered id sets: %q vs %q", k1, k2)
	}
}

func TestKey_QuestionChangesKey(t *testing.T) {
	c, _ := newTestCache(t)

	ids := []string{"chunk:1", "chunk:2"}
	if c.Key("질문 A", ids) == c.Key("질문 B", ids) {
		t.Error("different questions must yield different keys")
	}
}

func TestKey_Format(t *testing.T) {
	c, _ := newTestCache(t)

	key := c.Key("q", []string{"a"})
	if !strings.HasPrefix(key, cacheKeyPrefix) {
		t.Errorf("key %q missing prefix %q", key, cacheKeyPrefix)
	}
	if got := len(key) - len(cacheKeyPrefix); got != 16 {
		t.Errorf("expected 16-char fingerprint, got %d", got)
	}
}

func TestGetPut_RoundTrip(t *testing.T) {
	c, ms := newTestCache(t)
	ctx := context.Background()

	stored := map[string][]byte{}
	ms.setFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		if ttl != DefaultTTL {
			t.Errorf("expected TTL %v, got %v", DefaultTTL, ttl)
		}
		stored[key] = value
		return nil
	}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if v, ok := stored[key]; ok {
			return v, nil
		}
		return nil, db.ErrKeyNotFound
	}

	key := c.Key("q", []string{"chunk:1", "chunk:2"})
	c.Put(ctx, key, map[int]float64{0: 0.9, 1: 0.3})

	scores, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected cache hit after put")
	}
	if scores[0] != 0.9 || scores[1] != 0.3 {
		t.Errorf("unexpected scores: %v", scores)
	}
}

func TestGet_MissOnStoreError(t *testing.T) {
	c, ms := newTestCache(t)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("store error must count as a miss")
	}
}

func TestGet_MissOnCorruptEntry(t *testing.T) {
	c, ms := newTestCache(t)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte("not json"), nil
	}

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("corrupt entry must count as a miss")
	}
}

func TestPut_SwallowsWriteError(t *testing.T) {
	c, ms := newTestCache(t)

	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errors.New("connection refused")
	}

	// Must not panic or surface the error.
	c.Put(context.Background(), "k", map[int]float64{0: 0.5})
}
