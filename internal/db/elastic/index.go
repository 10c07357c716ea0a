package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/prindex/internal/db"
)

// IndexExists probes index existence; 404 means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, &db.Error{Op: db.OpIndexExists, Err: err}
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexExists, Err: responseError(res)}
	}
}

// DropIndex deletes an index and all of its documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	res, err := s.client.Indices.Delete([]string{name}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return db.ErrIndexNotFound
	}
	if res.IsError() {
		return &db.Error{Op: db.OpDropIndex, Err: responseError(res)}
	}
	return nil
}

// CreateIndex creates an index with the mapping derived from def.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid index definition: %w", err)
	}

	body, err := json.Marshal(buildMapping(def))
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := s.client.Indices.Create(def.Name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		apiErr := responseError(res)
		var se *StatusError
		if errors.As(apiErr, &se) && se.Type == "resource_already_exists_exception" {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: apiErr}
	}
	return nil
}

// buildMapping renders an index definition as an Elasticsearch create-index body.
func buildMapping(def *db.IndexDefinition) map[string]any {
	props := make(map[string]any, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		switch f.Type {
		case db.IndexFieldDenseVector:
			prop := map[string]any{
				"type":  "dense_vector",
				"dims":  f.VectorDims,
				"index": f.VectorIndexed,
			}
			if f.VectorSimilarity != "" {
				prop["similarity"] = string(f.VectorSimilarity)
			}
			props[f.Name] = prop
		default:
			props[f.Name] = map[string]any{"type": f.Type.String()}
		}
	}
	return map[string]any{
		"mappings": map[string]any{
			"properties": props,
		},
	}
}
