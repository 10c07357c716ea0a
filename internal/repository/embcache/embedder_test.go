package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prindex/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	// SET → OK (cache put)
	var setTTL time.Duration
	var setValue []byte
	ms.setFn = func(_ context.Context, _ string, value []byte, ttl time.Duration) error {
		setValue = value
		setTTL = ttl
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if len(setValue) != 12 {
		t.Fatalf("expected 12 cached bytes, got %d", len(setValue))
	}
	if setTTL != time.Hour {
		t.Errorf("expected TTL 1h, got %v", setTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Errorf("inner must not be called on hit, got %d calls", inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setCalled bool
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		setCalled = true
		return nil
	}

	if _, err := ce.Embed(context.Background(), "test text"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
	if setCalled {
		t.Error("failed embeddings must not be cached")
	}
}

func TestEmbed_StoreErrorsAreNotFatal(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(context.Context, string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		return errors.New("connection reset")
	}

	result, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("cache failures must fall through to inner: %v", err)
	}
	if len(result.Embedding) != 1 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(context.Context, string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("corrupt entry should fall back to inner, calls=%d", inner.calls)
	}
}

func TestEmbed_RoundTrip(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.25, -0.5, 1}}}
	store := &memKVStore{data: map[string][]byte{}}
	ce := New(inner, store, Config{Model: "m", Logger: zap.NewNop()})

	first, _ := ce.Embed(context.Background(), "Refactor parser")
	second, err := ce.Embed(context.Background(), "Refactor parser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("second call should be served from cache, inner calls=%d", inner.calls)
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Fatalf("vec[%d] = %f, want %f", i, second.Embedding[i], first.Embedding[i])
		}
	}
}

func TestCacheKey_ScopedByModel(t *testing.T) {
	a := New(&mockEmbedder{}, &mockKVStore{}, Config{Model: "model-a"})
	b := New(&mockEmbedder{}, &mockKVStore{}, Config{Model: "model-b"})

	if a.cacheKey("same") == b.cacheKey("same") {
		t.Error("keys for different models must differ")
	}
	if a.cacheKey("one") == a.cacheKey("two") {
		t.Error("keys for different texts must differ")
	}
	if a.cacheKey("same") != a.cacheKey("same") {
		t.Error("keys must be stable")
	}
	// model/text boundary must not be ambiguous
	c := New(&mockEmbedder{}, &mockKVStore{}, Config{Model: "ab"})
	d := New(&mockEmbedder{}, &mockKVStore{}, Config{Model: "a"})
	if c.cacheKey("c") == d.cacheKey("bc") {
		t.Error("model and text must be separated in the key")
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Fatal("expected error for length not multiple of 4")
	}
}
