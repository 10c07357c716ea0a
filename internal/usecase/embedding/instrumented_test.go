package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/prindex/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 4,
		TotalTokens:  4,
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 3, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
	if result.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, expected 4", result.TotalTokens)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 0, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_WidthMismatchLoggedOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0}}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 384, zap.New(core))

	for range 3 {
		res, err := p.Embed(context.Background(), "hello")
		if err != nil {
			t.Fatalf("mismatch must not fail locally: %v", err)
		}
		if len(res.Embedding) != 2 {
			t.Fatalf("vector must pass through unchanged")
		}
	}

	if n := logs.FilterMessage("Embedding width differs from index mapping").Len(); n != 1 {
		t.Errorf("expected one warning, got %d", n)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

type healthEmbedder struct {
	mockEmbedder
	err error
}

func (h *healthEmbedder) HealthCheck(context.Context) error { return h.err }

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	down := errors.New("down")
	p := NewInstrumentedEmbedder(&healthEmbedder{err: down}, "test", "m", 0, zap.NewNop())
	if err := p.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected inner health error, got %v", err)
	}

	p = NewInstrumentedEmbedder(&mockEmbedder{}, "test", "m", 0, zap.NewNop())
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedders without health checks are healthy, got %v", err)
	}
}
