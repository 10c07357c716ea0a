package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kailas-cloud/prindex/internal/db"
)

type bulkActionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

type bulkAction struct {
	Index bulkActionMeta `json:"index"`
}

type bulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkItemResponse `json:"items"`
}

type bulkItemResponse struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// Bulk indexes items into index with a single _bulk request.
func (s *Store) Bulk(ctx context.Context, index string, items []db.BulkItem) (*db.BulkResult, error) {
	if len(items) == 0 {
		return &db.BulkResult{}, nil
	}

	body, err := encodeBulk(index, items)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Bulk(bytes.NewReader(body),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, &db.Error{Op: db.OpBulk, Err: responseError(res)}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: fmt.Errorf("read response: %w", err)}
	}
	var parsed bulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: fmt.Errorf("parse response: %w", err)}
	}

	return collectResults(parsed, len(items)), nil
}

// encodeBulk renders items as an NDJSON body of index actions.
func encodeBulk(index string, items []db.BulkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, it := range items {
		if err := enc.Encode(bulkAction{Index: bulkActionMeta{Index: index, ID: it.ID}}); err != nil {
			return nil, fmt.Errorf("encode action %d: %w", i, err)
		}
		if err := enc.Encode(it.Source); err != nil {
			return nil, fmt.Errorf("encode source %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// collectResults aggregates per-item outcomes. Items missing from the response count as failed.
func collectResults(parsed bulkResponse, sent int) *db.BulkResult {
	result := &db.BulkResult{Items: make([]db.ItemResult, 0, sent)}

	for _, entry := range parsed.Items {
		for _, it := range entry {
			ir := db.ItemResult{ID: it.ID, Status: it.Status}
			switch {
			case it.Error != nil:
				ir.Err = fmt.Errorf("%s: %s", it.Error.Type, it.Error.Reason)
			case it.Status < 200 || it.Status > 299:
				ir.Err = fmt.Errorf("unexpected item status %d", it.Status)
			}
			result.Items = append(result.Items, ir)
			if ir.OK() {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}
	}

	if missing := sent - len(result.Items); missing > 0 {
		result.Failed += missing
	}
	return result
}
