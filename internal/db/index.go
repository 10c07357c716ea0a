package db

import (
	"errors"
	"strconv"
	"strings"
)

// Similarity is the metric used to compare dense vectors.
type Similarity string

const (
	// SimilarityCosine is cosine similarity.
	SimilarityCosine Similarity = "cosine"
	// SimilarityDotProduct is dot product similarity (unit vectors only).
	SimilarityDotProduct Similarity = "dot_product"
	// SimilarityL2 is euclidean distance.
	SimilarityL2 Similarity = "l2_norm"
)

// IndexFieldType enumerates supported index field types.
type IndexFieldType int

const (
	// IndexFieldKeyword is an exact-match keyword field.
	IndexFieldKeyword IndexFieldType = iota
	// IndexFieldText is an analyzed full-text field.
	IndexFieldText
	// IndexFieldDenseVector is a fixed-length float vector field.
	IndexFieldDenseVector
)

// String returns the mapping type name of the field type.
func (t IndexFieldType) String() string {
	switch t {
	case IndexFieldKeyword:
		return "keyword"
	case IndexFieldText:
		return "text"
	case IndexFieldDenseVector:
		return "dense_vector"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// IndexField describes a single field of an index mapping.
type IndexField struct {
	Name string
	Type IndexFieldType

	// dense_vector options
	VectorDims       int
	VectorSimilarity Similarity
	VectorIndexed    bool
}

// IndexDefinition is a complete index definition used on index creation.
type IndexDefinition struct {
	Name   string
	Fields []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIndexName(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true

		if f.Type == IndexFieldDenseVector && f.VectorDims <= 0 {
			return errors.New("dense_vector field requires positive dims")
		}
	}

	return nil
}

// Field returns the field with the given name.
func (idx *IndexDefinition) Field(name string) (IndexField, bool) {
	for _, f := range idx.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexField{}, false
}

// IsValidIndexName returns true if s is a lowercase name made of [a-z0-9_.-]
// that does not start with '-', '_' or '+'.
func IsValidIndexName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.IndexAny(s[:1], "-_+") == 0 {
		return false
	}
	for _, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == '-' || r == '.'
		if !isLower && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
