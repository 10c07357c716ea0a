package db

import (
	"context"
	"time"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexManager provides search index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// BulkItem is a single index action of a bulk request.
// An empty ID lets the backend assign one.
type BulkItem struct {
	ID     string
	Source any
}

// ItemResult is the outcome of one action of a bulk request.
type ItemResult struct {
	ID     string
	Status int
	Err    error
}

// OK reports whether the action succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

// BulkResult aggregates the outcome of a bulk request.
type BulkResult struct {
	Succeeded int
	Failed    int
	Items     []ItemResult
}

// FirstError returns the first failed item, if any.
func (r *BulkResult) FirstError() (ItemResult, bool) {
	for _, it := range r.Items {
		if !it.OK() {
			return it, true
		}
	}
	return ItemResult{}, false
}

// BulkWriter writes documents to an index in a single request.
// A returned error means the request itself failed; per-item failures are reported in BulkResult.
type BulkWriter interface {
	Bulk(ctx context.Context, index string, items []BulkItem) (*BulkResult, error)
}

// Counter reports the number of searchable documents in an index.
type Counter interface {
	Count(ctx context.Context, index string) (int, error)
}

// SearchStore is the facade of a search backend used by the indexer.
type SearchStore interface {
	Pinger
	IndexManager
	BulkWriter
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
