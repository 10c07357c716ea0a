// Package fetch samples the head of the upstream pull request dataset into a local file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// Config holds the sample parameters.
type Config struct {
	SampleSize int
	OutputPath string
}

// Service downloads the dataset and writes its first SampleSize records to OutputPath.
type Service struct {
	source      Source
	writer      Writer
	cfg         Config
	logger      *zap.Logger
	rowsFetched prometheus.Counter
}

// New creates a fetch service. rowsFetched may be nil.
func New(source Source, writer Writer, cfg Config, logger *zap.Logger, rowsFetched prometheus.Counter) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:      source,
		writer:      writer,
		cfg:         cfg,
		logger:      logger,
		rowsFetched: rowsFetched,
	}
}

// Run fetches the sample and writes it. On error nothing is written.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("Downloading dataset: %s...", s.source.Name()))

	r, err := s.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = r.Close() }()

	s.logger.Info(fmt.Sprintf("Selecting %s records for the test dataset...",
		humanize.Comma(int64(s.cfg.SampleSize))))

	records, err := Select(ctx, r, s.cfg.SampleSize)
	if err != nil {
		return err
	}

	s.logger.Info(fmt.Sprintf("Saving dataset to %s...", s.cfg.OutputPath))
	if err := s.writer.WriteFile(s.cfg.OutputPath, records); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	if s.rowsFetched != nil {
		s.rowsFetched.Add(float64(len(records)))
	}

	s.logger.Info("Download and save complete! Your data is ready for Elastic.",
		zap.Int("records", len(records)),
		zap.String("path", s.cfg.OutputPath))
	return nil
}

// Select reads exactly the first n records of r in source order.
// A shorter stream yields a *domain.OutOfRangeError.
func Select(ctx context.Context, r domain.PullRequestReader, n int) ([]domain.PullRequest, error) {
	out := make([]domain.PullRequest, 0, n)
	for len(out) < n {
		pr, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, &domain.OutOfRangeError{Requested: n, Available: len(out)}
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(out), err)
		}
		out = append(out, pr)
	}
	return out, nil
}
