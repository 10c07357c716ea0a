package indexer

import (
	"context"

	"github.com/kailas-cloud/prindex/internal/db"
	"github.com/kailas-cloud/prindex/internal/domain"
)

// Store is the search backend the indexer writes to.
type Store interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	DropIndex(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	Bulk(ctx context.Context, index string, items []db.BulkItem) (*db.BulkResult, error)
}

// RecordReader yields the sampled pull requests in file order; io.EOF ends the stream.
type RecordReader interface {
	Next() (domain.PullRequest, error)
	Close() error
}

// OpenFunc opens the sampled dataset.
type OpenFunc func() (RecordReader, error)
