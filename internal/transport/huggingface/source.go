package huggingface

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prindex/internal/domain"
	"github.com/kailas-cloud/prindex/internal/repository/dataset"
)

// SourceConfig selects the dataset split and the local shard cache.
type SourceConfig struct {
	Dataset  string
	Config   string // empty = dataset default
	Split    string
	CacheDir string
}

// Source streams pull requests from the parquet shards of a dataset split.
// Shards are downloaded lazily, so reading only the head of a split fetches only the first shards.
type Source struct {
	client *Client
	cfg    SourceConfig
	logger *zap.Logger
}

// NewSource creates a Source backed by client.
func NewSource(client *Client, cfg SourceConfig) *Source {
	return &Source{client: client, cfg: cfg, logger: client.logger}
}

// Name returns the dataset identifier.
func (s *Source) Name() string {
	return s.cfg.Dataset
}

// Open lists the split's shards and returns a reader positioned at the first record.
func (s *Source) Open(ctx context.Context) (domain.PullRequestReader, error) {
	files, err := s.client.ListParquetFiles(ctx, s.cfg.Dataset, s.cfg.Config, s.cfg.Split)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Dataset shards listed",
		zap.String("dataset", s.cfg.Dataset),
		zap.String("config", files[0].Config),
		zap.String("split", s.cfg.Split),
		zap.Int("shards", len(files)))

	return &shardReader{source: s, files: files}, nil
}

// shardReader chains dataset.Readers over consecutive shards.
type shardReader struct {
	source  *Source
	files   []ParquetFile
	next    int
	current *dataset.Reader
}

func (r *shardReader) Next(ctx context.Context) (domain.PullRequest, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PullRequest{}, err //nolint:wrapcheck // context error is returned as is
		}

		if r.current == nil {
			if r.next >= len(r.files) {
				return domain.PullRequest{}, io.EOF
			}
			if err := r.openShard(ctx, r.files[r.next]); err != nil {
				return domain.PullRequest{}, err
			}
			r.next++
		}

		pr, err := r.current.Next()
		if errors.Is(err, io.EOF) {
			_ = r.current.Close()
			r.current = nil
			continue
		}
		if err != nil {
			return domain.PullRequest{}, fmt.Errorf("read shard %d: %w", r.next, err)
		}
		return pr, nil
	}
}

func (r *shardReader) openShard(ctx context.Context, file ParquetFile) error {
	path, err := r.source.client.Download(ctx, file, r.source.cfg.CacheDir)
	if err != nil {
		return err
	}
	rd, err := dataset.Open(path)
	if err != nil {
		return fmt.Errorf("open shard %s: %w", file.Filename, err)
	}
	r.source.logger.Debug("Shard opened",
		zap.String("file", file.Filename),
		zap.Int("rows", rd.Len()))
	r.current = rd
	return nil
}

func (r *shardReader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
