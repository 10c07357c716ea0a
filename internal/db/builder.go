package db

import (
	"strconv"
	"strings"
)

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Keyword adds an exact-match keyword field.
func (b *IndexBuilder) Keyword(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name: name,
		Type: IndexFieldKeyword,
	})
	return b
}

// Text adds a full-text field.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name: name,
		Type: IndexFieldText,
	})
	return b
}

// DenseVector adds an indexed dense_vector field.
func (b *IndexBuilder) DenseVector(name string, dims int, similarity Similarity) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:             name,
		Type:             IndexFieldDenseVector,
		VectorDims:       dims,
		VectorSimilarity: similarity,
		VectorIndexed:    true,
	})
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild calls Build and panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a compact debug representation of the definition.
func (idx *IndexDefinition) String() string {
	parts := []string{idx.Name}
	for i := range idx.Fields {
		f := &idx.Fields[i]
		s := f.Name + ":" + f.Type.String()
		if f.Type == IndexFieldDenseVector {
			s += "(" + strconv.Itoa(f.VectorDims) + "," + string(f.VectorSimilarity) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
