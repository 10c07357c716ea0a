package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewIndexDocument(t *testing.T) {
	pr := PullRequest{ID: "12345", Title: "Fix flaky test", Body: "Retries the network call."}
	vec := []float32{0.1, 0.2}

	doc := NewIndexDocument(pr, vec)

	if doc.PRNumber != "12345" {
		t.Errorf("PRNumber = %q, want %q", doc.PRNumber, "12345")
	}
	if doc.Title != pr.Title || doc.Body != pr.Body {
		t.Errorf("title/body not copied verbatim: %+v", doc)
	}
	if len(doc.TitleVector) != 2 {
		t.Errorf("expected vector of len 2, got %d", len(doc.TitleVector))
	}
}

func TestIndexDocument_JSONKeys(t *testing.T) {
	doc := NewIndexDocument(PullRequest{ID: "7", Title: "t", Body: "b"}, []float32{1})
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{FieldPRNumber, FieldTitle, FieldBody, FieldTitleVector} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if len(m) != 4 {
		t.Errorf("expected 4 keys, got %d", len(m))
	}
}

func TestOutOfRangeError(t *testing.T) {
	var err error = &OutOfRangeError{Requested: 5000, Available: 12}

	if !errors.Is(err, ErrOutOfRange) {
		t.Fatal("expected errors.Is(err, ErrOutOfRange)")
	}
	want := "index out of range: requested 5000 records, dataset has 12"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
