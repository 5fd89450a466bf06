package embcache

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/db"
)

type mockStore struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string][]byte{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

type mockEmbedder struct {
	calls    int
	gotTexts []string
	err      error
}

func (m *mockEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.gotTexts = texts
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t)), 0.5}
	}
	return vectors, nil
}

func TestEmbedTexts_CachesAndReusesVectors(t *testing.T) {
	inner := &mockEmbedder{}
	c := New(inner, newMockStore(), nil, zap.NewNop())

	first, err := c.EmbedTexts(context.Background(), []string{"연차 기준"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := c.EmbedTexts(context.Background(), []string{"연차 기준"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1 (second lookup served from cache)", inner.calls)
	}
	if len(second) != 1 || len(second[0]) != len(first[0]) {
		t.Fatalf("cached vector shape mismatch: %v vs %v", second, first)
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Errorf("cached vector differs at %d: %v != %v", i, first[0][i], second[0][i])
		}
	}
}

func TestEmbedTexts_OnlyMissesReachInner(t *testing.T) {
	inner := &mockEmbedder{}
	c := New(inner, newMockStore(), nil, zap.NewNop())

	if _, err := c.EmbedTexts(context.Background(), []string{"a질문"}); err != nil {
		t.Fatal(err)
	}

	got, err := c.EmbedTexts(context.Background(), []string{"a질문", "b질문", "c질문"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inner.gotTexts) != 2 {
		t.Errorf("inner received %v, want only the two cache misses", inner.gotTexts)
	}
	if len(got) != 3 {
		t.Fatalf("vectors = %d, want 3 in input order", len(got))
	}
	for i, vec := range got {
		if vec == nil {
			t.Errorf("vector %d is nil", i)
		}
	}
}

func TestEmbedTexts_StoreFailureDegradesToMiss(t *testing.T) {
	inner := &mockEmbedder{}
	ms := newMockStore()
	ms.getErr = errors.New("store down")
	ms.setErr = errors.New("store down")
	c := New(inner, ms, nil, zap.NewNop())

	got, err := c.EmbedTexts(context.Background(), []string{"질문"})
	if err != nil {
		t.Fatalf("cache failure must not fail embedding: %v", err)
	}
	if len(got) != 1 || got[0] == nil {
		t.Errorf("expected a vector despite cache failure, got %v", got)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestEmbedTexts_InnerFailurePropagates(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("api down")}
	c := New(inner, newMockStore(), nil, zap.NewNop())

	if _, err := c.EmbedTexts(context.Background(), []string{"질문"}); err == nil {
		t.Fatal("expected error when the inner embedder fails")
	}
}

func TestEmbedTexts_Empty(t *testing.T) {
	c := New(&mockEmbedder{}, newMockStore(), nil, zap.NewNop())

	got, err := c.EmbedTexts(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("EmbedTexts(nil) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75}

	got, err := bytesToVector(vectorToCacheBytes(vec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("round trip differs at %d: %v != %v", i, got[i], vec[i])
		}
	}
}

func TestBytesToVector_Corrupt(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for data not a multiple of 4 bytes")
	}
}
