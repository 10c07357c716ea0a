package elastic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/prindex/internal/db"
)

// Count refreshes the index and returns the number of searchable documents.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	ref, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	refErr := ref.IsError()
	if refErr {
		err = responseError(ref)
	}
	closeBody(ref)
	if refErr {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(index),
	)
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return 0, &db.Error{Op: db.OpCount, Err: responseError(res)}
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: fmt.Errorf("parse response: %w", err)}
	}
	return parsed.Count, nil
}
