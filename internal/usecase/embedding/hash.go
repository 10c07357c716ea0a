package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// HashEmbedder is a deterministic offline embedder based on signed feature hashing
// of lowercased word unigrams and bigrams. Vectors are L2-normalised, so texts sharing
// words have positive cosine similarity. Meant for air-gapped runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder producing dims-wide vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector width.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Embed implements domain.Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // context error
	}

	tokens := tokenize(text)
	// Cosine similarity is undefined for the zero vector.
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	vec := make([]float32, h.dims)
	add := func(feature string) {
		sum := xxhash.Sum64String(feature)
		idx := sum % uint64(h.dims)
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	for i, tok := range tokens {
		add(tok)
		if i > 0 {
			add(tokens[i-1] + " " + tok)
		}
	}

	normalize(vec)

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: len(tokens),
		TotalTokens:  len(tokens),
	}, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
