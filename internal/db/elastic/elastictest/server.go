// Package elastictest provides an in-memory Elasticsearch fake for tests.
// It understands the subset of the REST API used by the elastic store:
// ping, index exists/create/delete, refresh, count and _bulk index actions.
package elastictest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Index is a snapshot of an index held by the fake.
type Index struct {
	Mapping map[string]any
	Docs    []map[string]any
}

// VectorDims returns the declared dims of a dense_vector property, or 0.
func (i *Index) VectorDims(field string) int {
	mappings, _ := i.Mapping["mappings"].(map[string]any)
	props, _ := mappings["properties"].(map[string]any)
	prop, _ := props[field].(map[string]any)
	dims, _ := prop["dims"].(float64)
	return int(dims)
}

// Server is an httptest server emulating Elasticsearch.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	indices      map[string]*Index
	bulkRequests int
	bulkSizes    []int
	failNext     []int
	rejectItem   func(source map[string]any) bool
}

// NewServer starts a fake. Close it with Server.Close.
func NewServer() *Server {
	s := &Server{indices: make(map[string]*Index)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Index returns a copy of the named index.
func (s *Server) Index(name string) (Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return Index{}, false
	}
	docs := make([]map[string]any, len(idx.Docs))
	copy(docs, idx.Docs)
	return Index{Mapping: idx.Mapping, Docs: docs}, true
}

// Seed creates the index when missing and appends docs to it.
func (s *Server) Seed(name string, docs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		idx = &Index{Mapping: map[string]any{}}
		s.indices[name] = idx
	}
	idx.Docs = append(idx.Docs, docs...)
}

// BulkRequests returns the number of _bulk requests served.
func (s *Server) BulkRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkRequests
}

// BulkSizes returns the number of actions in each served _bulk request.
func (s *Server) BulkSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.bulkSizes))
	copy(out, s.bulkSizes)
	return out
}

// FailNext makes the next len(statuses) requests fail with the given statuses.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, statuses...)
}

// RejectItems makes _bulk reject every document for which fn returns true.
func (s *Server) RejectItems(fn func(source map[string]any) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectItem = fn
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failNext) > 0 {
		status := s.failNext[0]
		s.failNext = s.failNext[1:]
		writeError(w, status, "injected_failure", "injected by test")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `{"version":{"number":"8.17.0"},"tagline":"You Know, for Search"}`)
		}
	case len(parts) == 1 && parts[0] == "_bulk":
		s.handleBulk(w, r, "")
	case len(parts) == 1:
		s.handleIndex(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "_bulk":
		s.handleBulk(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "_refresh":
		if _, ok := s.indices[parts[0]]; !ok {
			writeError(w, http.StatusNotFound, "index_not_found_exception", "no such index ["+parts[0]+"]")
			return
		}
		_, _ = io.WriteString(w, `{"_shards":{"total":1,"successful":1,"failed":0}}`)
	case len(parts) == 2 && parts[1] == "_count":
		idx, ok := s.indices[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "index_not_found_exception", "no such index ["+parts[0]+"]")
			return
		}
		_, _ = fmt.Fprintf(w, `{"count":%d}`, len(idx.Docs))
	default:
		writeError(w, http.StatusBadRequest, "unsupported", r.Method+" "+r.URL.Path)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, name string) {
	_, exists := s.indices[name]

	switch r.Method {
	case http.MethodHead:
		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodDelete:
		if !exists {
			writeError(w, http.StatusNotFound, "index_not_found_exception", "no such index ["+name+"]")
			return
		}
		delete(s.indices, name)
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case http.MethodPut:
		if exists {
			writeError(w, http.StatusBadRequest, "resource_already_exists_exception",
				"index ["+name+"] already exists")
			return
		}
		mapping := map[string]any{}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			if err := json.Unmarshal(body, &mapping); err != nil {
				writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
				return
			}
		}
		s.indices[name] = &Index{Mapping: mapping}
		_, _ = fmt.Fprintf(w, `{"acknowledged":true,"shards_acknowledged":true,"index":%q}`, name)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported", r.Method)
	}
}

type bulkMeta struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, defaultIndex string) {
	s.bulkRequests++

	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var items []map[string]any
	hasErrors := false
	actions := 0

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var meta bulkMeta
		if err := json.Unmarshal(line, &meta); err != nil {
			writeError(w, http.StatusBadRequest, "parse_exception", "malformed action: "+err.Error())
			return
		}
		if !sc.Scan() {
			writeError(w, http.StatusBadRequest, "parse_exception", "missing source line")
			return
		}
		var source map[string]any
		if err := json.Unmarshal(sc.Bytes(), &source); err != nil {
			writeError(w, http.StatusBadRequest, "parse_exception", "malformed source: "+err.Error())
			return
		}
		actions++

		name := meta.Index.Index
		if name == "" {
			name = defaultIndex
		}
		id := meta.Index.ID
		if id == "" {
			id = fmt.Sprintf("auto-%d-%d", s.bulkRequests, actions)
		}

		status, errType, reason := s.indexDoc(name, source)
		item := map[string]any{"_index": name, "_id": id, "status": status}
		if errType != "" {
			hasErrors = true
			item["error"] = map[string]any{"type": errType, "reason": reason}
		} else {
			item["result"] = "created"
		}
		items = append(items, map[string]any{"index": item})
	}
	s.bulkSizes = append(s.bulkSizes, actions)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"took":   1,
		"errors": hasErrors,
		"items":  items,
	})
}

// indexDoc stores source, auto-creating the index like Elasticsearch does.
func (s *Server) indexDoc(name string, source map[string]any) (int, string, string) {
	if s.rejectItem != nil && s.rejectItem(source) {
		return http.StatusBadRequest, "document_parsing_exception", "rejected by test"
	}

	idx, ok := s.indices[name]
	if !ok {
		idx = &Index{Mapping: map[string]any{}}
		s.indices[name] = idx
	}

	mappings, _ := idx.Mapping["mappings"].(map[string]any)
	props, _ := mappings["properties"].(map[string]any)
	for field, raw := range props {
		prop, _ := raw.(map[string]any)
		if prop["type"] != "dense_vector" {
			continue
		}
		dims, _ := prop["dims"].(float64)
		vec, _ := source[field].([]any)
		if source[field] != nil && len(vec) != int(dims) {
			return http.StatusBadRequest, "document_parsing_exception",
				fmt.Sprintf("The [dense_vector] field [%s] has a different number of dimensions [%d] than defined in the mapping [%d]",
					field, len(vec), int(dims))
		}
	}

	idx.Docs = append(idx.Docs, source)
	return http.StatusCreated, "", ""
}

func writeError(w http.ResponseWriter, status int, errType, reason string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  map[string]any{"type": errType, "reason": reason},
		"status": status,
	})
}
