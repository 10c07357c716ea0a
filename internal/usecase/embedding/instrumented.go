package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// InstrumentedEmbedder wraps Embedder with logging.
// Transport metrics (requests, duration, tokens) are recorded by the provider itself.
type InstrumentedEmbedder struct {
	inner      domain.Embedder
	provider   string
	model      string
	dimensions int
	logger     *zap.Logger

	mismatchLogged atomic.Bool
}

// NewInstrumentedEmbedder wraps an embedder with observability.
// dimensions is the width the index expects; 0 disables the mismatch warning.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, dimensions int, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:      inner,
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed delegates to the inner embedder and logs the outcome.
// A width mismatch is only logged once; the search service rejects such documents.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if p.dimensions > 0 && len(result.Embedding) != p.dimensions && p.mismatchLogged.CompareAndSwap(false, true) {
		p.logger.Warn("Embedding width differs from index mapping",
			zap.String("model", p.model),
			zap.Int("got", len(result.Embedding)),
			zap.Int("expected", p.dimensions),
		)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}
