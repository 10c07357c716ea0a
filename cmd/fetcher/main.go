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
	logpkg "github.com/kailas-cloud/prindex/internal/logger"
	"github.com/kailas-cloud/prindex/internal/metrics"
	"github.com/kailas-cloud/prindex/internal/repository/dataset"
	"github.com/kailas-cloud/prindex/internal/transport/huggingface"
	fetchuc "github.com/kailas-cloud/prindex/internal/usecase/fetch"
	"github.com/kailas-cloud/prindex/internal/version"
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

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, "fetcher")
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dataset fetcher",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("dataset", cfg.Dataset.Name),
		zap.Int("sample_size", cfg.Dataset.SampleSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetch(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

// fetch runs the fetcher and reports a failure instead of returning it,
// so the process still exits normally.
func fetch(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) {
	if err := run(ctx, cfg, logger, reg); err != nil {
		logger.Error("An error occurred", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) error {
	if err := cfg.ValidateFetcher(); err != nil {
		return err //nolint:wrapcheck // already describes the field
	}

	m := metrics.NewPipeline(reg)
	srv, err := metrics.Serve(cfg.Metrics.Port, prometheus.DefaultGatherer, logger)
	if err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	client := huggingface.NewClient(huggingface.Config{
		ServerURL:     cfg.Dataset.ServerURL,
		Token:         cfg.Dataset.Token,
		MaxRetries:    huggingface.DefaultMaxRetries,
		Logger:        logger,
		DownloadBytes: m.DownloadBytes,
	})
	source := huggingface.NewSource(client, huggingface.SourceConfig{
		Dataset:  cfg.Dataset.Name,
		Config:   cfg.Dataset.Config,
		Split:    cfg.Dataset.Split,
		CacheDir: cfg.Dataset.CacheDir,
	})

	svc := fetchuc.New(source, dataset.FileWriter{}, fetchuc.Config{
		SampleSize: cfg.Dataset.SampleSize,
		OutputPath: cfg.Dataset.OutputPath,
	}, logger, m.RowsFetched)

	return svc.Run(ctx) //nolint:wrapcheck // service errors carry their own context
}
