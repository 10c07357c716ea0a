package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prindex/internal/config"
	"github.com/kailas-cloud/prindex/internal/db/elastic"
	dbValkey "github.com/kailas-cloud/prindex/internal/db/valkey"
	"github.com/kailas-cloud/prindex/internal/domain"
	logpkg "github.com/kailas-cloud/prindex/internal/logger"
	"github.com/kailas-cloud/prindex/internal/metrics"
	"github.com/kailas-cloud/prindex/internal/repository/dataset"
	"github.com/kailas-cloud/prindex/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/prindex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/prindex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/prindex/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/prindex/internal/usecase/indexer"
	"github.com/kailas-cloud/prindex/internal/version"
)

const (
	cacheReadinessTimeout = 10 * time.Second
	preflightTimeout      = 30 * time.Second
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic("failed to load .env: " + err.Error())
	}

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, "indexer")
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vector indexer",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("index", cfg.Index.Name),
		zap.String("dataset", cfg.Dataset.OutputPath),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Indexing failed", zap.Error(err))
	}

	if err := indexeruc.Report(os.Stdout, stats); err != nil {
		logger.Error("Failed to print report", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (indexeruc.Stats, error) {
	if err := cfg.ValidateIndexer(); err != nil {
		return indexeruc.Stats{}, err //nolint:wrapcheck // already describes the field
	}

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	pipeline := metrics.NewPipeline(prometheus.DefaultRegisterer)

	srv, err := metrics.Serve(cfg.Metrics.Port, prometheus.DefaultGatherer, logger)
	if err != nil {
		return indexeruc.Stats{}, fmt.Errorf("start metrics server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	store, err := elastic.NewStore(elastic.Config{
		Endpoint:       cfg.Elastic.Endpoint,
		APIKey:         cfg.Elastic.APIKey,
		RequestTimeout: cfg.Elastic.RequestTimeout,
		MaxRetries:     cfg.Elastic.MaxRetries,
		RetryOnTimeout: cfg.Elastic.RetryOnTimeout,
	})
	if err != nil {
		return indexeruc.Stats{}, fmt.Errorf("create search client: %w", err)
	}
	embedder, closeCache, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return indexeruc.Stats{}, err
	}
	defer closeCache()

	// Fail before the index is dropped if a dependency is unreachable.
	checks := healthuc.New(preflightTimeout).Add("search", store.Ping)
	if hc, ok := embedder.(domain.HealthChecker); ok {
		checks.Add("embedding", hc.HealthCheck)
	}
	report := checks.Check(ctx)
	if err := report.Err(); err != nil {
		return indexeruc.Stats{}, fmt.Errorf("preflight (%s): %w", report.Status, err)
	}
	logger.Info("Dependencies ready", zap.Any("checks", report.Checks))

	svc := indexeruc.New(store, embedder, indexeruc.Config{
		Index:      cfg.Index.Name,
		Dimensions: cfg.Index.Dimensions,
		BatchSize:  cfg.Index.BatchSize,
	}, logger, pipeline)

	stats, err := svc.Run(ctx, func() (indexeruc.RecordReader, error) {
		return dataset.Open(cfg.Dataset.OutputPath)
	})
	if err != nil {
		return stats, err //nolint:wrapcheck // service errors carry their own context
	}

	if n, err := store.Count(ctx, cfg.Index.Name); err != nil {
		logger.Warn("Failed to count indexed documents", zap.Error(err))
	} else {
		pipeline.IndexDocs.WithLabelValues(cfg.Index.Name).Set(float64(n))
		logger.Info("Index ready", zap.String("index", cfg.Index.Name), zap.Int("docs", n))
	}

	return stats, nil
}

// buildEmbedder assembles the decorator chain: provider -> Cached (optional) -> Instrumented.
// The returned func releases the cache connection.
func buildEmbedder(
	ctx context.Context, cfg config.Config, logger *zap.Logger,
) (domain.Embedder, func(), error) {
	model := cfg.Embedding.Model

	var base domain.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderHash:
		base = embeddinguc.NewHashEmbedder(cfg.Index.Dimensions)
		model = fmt.Sprintf("hash-%d", cfg.Index.Dimensions)
	default:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:   cfg.Embedding.APIKey,
			BaseURL:  cfg.Embedding.BaseURL,
			Model:    model,
			Provider: cfg.Embedding.Provider,
			Logger:   logger,
		})
	}

	embedder := base
	closeCache := func() {}
	if addr := cfg.Embedding.Cache.Addr; addr != "" {
		kv, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    []string{addr},
			Password: cfg.Embedding.Cache.Password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create embedding cache: %w", err)
		}
		if err := kv.WaitForReady(ctx, cacheReadinessTimeout); err != nil {
			kv.Close()
			return nil, nil, fmt.Errorf("embedding cache not ready: %w", err)
		}
		logger.Info("Embedding cache enabled", zap.String("addr", addr))

		embedder = embcache.New(embedder, kv, embcache.Config{
			Model:      model,
			TTL:        cfg.Embedding.Cache.TTL,
			CacheTotal: metrics.EmbeddingCacheTotal,
			Logger:     logger,
		})
		closeCache = kv.Close
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, model, cfg.Index.Dimensions, logger,
	)

	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", model),
		zap.Int("dimensions", cfg.Index.Dimensions),
	)
	return embedder, closeCache, nil
}
