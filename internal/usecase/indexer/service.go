// Package indexer embeds pull request titles and bulk-loads them into the search index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/prindex/internal/db"
	"github.com/kailas-cloud/prindex/internal/domain"
	"github.com/kailas-cloud/prindex/internal/metrics"
)

// Defaults.
const (
	DefaultIndex      = "pr-code-reviews"
	DefaultDimensions = 384
	DefaultBatchSize  = 100
	DefaultBuffer     = 2 * DefaultBatchSize
)

// Config holds the target index parameters.
type Config struct {
	Index      string
	Dimensions int
	BatchSize  int
	Buffer     int // capacity of the channel between embedding and bulk writes
}

// Stats is the outcome of a bulk load.
type Stats struct {
	Succeeded int
	Failed    int
	Batches   int
}

// Service recreates the index and loads documents into it.
type Service struct {
	store    Store
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Pipeline
}

// New creates an indexer service. m may be nil.
func New(store Store, embedder domain.Embedder, cfg Config, logger *zap.Logger, m *metrics.Pipeline) *Service {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 2 * cfg.BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNopPipeline()
	}
	return &Service{store: store, embedder: embedder, cfg: cfg, logger: logger, metrics: m}
}

// Definition returns the fixed mapping of the pull request index.
func Definition(name string, dims int) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(name).
		Keyword(domain.FieldPRNumber).
		Text(domain.FieldTitle).
		Text(domain.FieldBody).
		DenseVector(domain.FieldTitleVector, dims, db.SimilarityCosine).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index definition: %w", err)
	}
	return def, nil
}

// ConfigureIndex drops the index if it exists and creates it empty with the fixed mapping.
func (s *Service) ConfigureIndex(ctx context.Context) error {
	def, err := Definition(s.cfg.Index, s.cfg.Dimensions)
	if err != nil {
		return err
	}

	exists, err := s.store.IndexExists(ctx, s.cfg.Index)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		if err := s.store.DropIndex(ctx, s.cfg.Index); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index: %w", err)
		}
		s.logger.Info("Dropped existing index", zap.String("index", s.cfg.Index))
	}

	if err := s.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.logger.Info("Index created",
		zap.String("index", s.cfg.Index),
		zap.Int("dims", s.cfg.Dimensions))
	return nil
}

// Generate embeds each record's title and sends the documents to out in file order.
// out is closed after the last record; on error it is left open and the caller's
// context cancellation stops the consumer.
func (s *Service) Generate(ctx context.Context, r RecordReader, out chan<- domain.IndexDocument) error {
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // context error is returned as is
		}

		pr, err := r.Next()
		if errors.Is(err, io.EOF) {
			close(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record %d: %w", n, err)
		}

		res, err := s.embedder.Embed(ctx, pr.Title)
		if err != nil {
			return fmt.Errorf("embed title of %s: %w", pr.ID, err)
		}

		select {
		case out <- domain.NewIndexDocument(pr, res.Embedding):
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // context error is returned as is
		}
	}
}

// BulkWrite consumes docs in batches of BatchSize, one bulk request per batch.
// Rejected documents are counted; a failed request stops the load.
func (s *Service) BulkWrite(ctx context.Context, docs <-chan domain.IndexDocument) (Stats, error) {
	var stats Stats
	batch := make([]db.BulkItem, 0, s.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writeBatch(ctx, batch, &stats); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err() //nolint:wrapcheck // context error is returned as is
		case doc, ok := <-docs:
			if !ok {
				err := flush()
				return stats, err
			}
			batch = append(batch, db.BulkItem{Source: doc})
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
}

func (s *Service) writeBatch(ctx context.Context, items []db.BulkItem, stats *Stats) error {
	index := s.cfg.Index
	start := time.Now()
	res, err := s.store.Bulk(ctx, index, items)
	s.metrics.BatchDuration.WithLabelValues(index).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("bulk batch %d: %w", stats.Batches+1, err)
	}

	stats.Batches++
	stats.Succeeded += res.Succeeded
	stats.Failed += res.Failed
	s.metrics.BatchesTotal.WithLabelValues(index).Inc()
	s.metrics.DocsIndexed.WithLabelValues(index).Add(float64(res.Succeeded))
	s.metrics.DocsFailed.WithLabelValues(index).Add(float64(res.Failed))

	if failed, ok := res.FirstError(); ok {
		s.logger.Warn("Documents rejected",
			zap.Int("batch", stats.Batches),
			zap.Int("failed", res.Failed),
			zap.Int("status", failed.Status),
			zap.Error(failed.Err))
	} else {
		s.logger.Debug("Batch indexed",
			zap.Int("batch", stats.Batches),
			zap.Int("docs", res.Succeeded))
	}
	return nil
}

// Load streams r through Generate and BulkWrite concurrently.
func (s *Service) Load(ctx context.Context, r RecordReader) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	docs := make(chan domain.IndexDocument, s.cfg.Buffer)

	g.Go(func() error {
		return s.Generate(gctx, r, docs)
	})

	var stats Stats
	g.Go(func() error {
		var err error
		stats, err = s.BulkWrite(gctx, docs)
		return err
	})

	if err := g.Wait(); err != nil {
		return stats, err //nolint:wrapcheck // already wrapped by Generate or BulkWrite
	}
	return stats, nil
}

// Run recreates the index, then loads every record from open into it.
// open is called after the index is configured.
func (s *Service) Run(ctx context.Context, open OpenFunc) (Stats, error) {
	if err := s.ConfigureIndex(ctx); err != nil {
		return Stats{}, err
	}

	r, err := open()
	if err != nil {
		return Stats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = r.Close() }()

	stats, err := s.Load(ctx, r)
	if err != nil {
		return stats, err
	}
	s.logger.Info("Bulk load finished",
		zap.String("index", s.cfg.Index),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("batches", stats.Batches))
	return stats, nil
}

// Report prints the run summary.
func Report(w io.Writer, stats Stats) error {
	if _, err := fmt.Fprintf(w, "Documents indexed: %d\n", stats.Succeeded); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if stats.Failed > 0 {
		if _, err := fmt.Fprintf(w, "Failed to index: %d\n", stats.Failed); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
