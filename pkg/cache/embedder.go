package cache

import (
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"unicode"
)

// Embedder turns prompt text into a vector for similarity comparison.
type Embedder interface {
	// Embed returns a vector for the text. Implementations should return
	// unit-length vectors so callers can compare them by dot product.
	Embed(text string) ([]float32, error)

	// Dimensions returns the vector length Embed produces.
	Dimensions() int
}

// LocalEmbedder is a deterministic in-process embedder. Each token maps to
// a fixed pseudo-random unit-range vector seeded by its hash; the text
// vector is the token sum, L2-normalized. Texts sharing tokens land close
// together, which is exactly the paraphrase behavior the semantic cache
// needs, with no network call and stable output across processes.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates an embedder producing vectors of the given
// dimensionality.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed vectorizes text. Empty text (no tokens) cannot be embedded.
func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, errors.New("cannot embed empty text")
	}

	vec := make([]float32, e.dimensions)
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		r := rand.New(rand.NewSource(int64(h.Sum64())))
		for i := range vec {
			vec[i] += float32(r.Float64()*2 - 1)
		}
	}

	normalize(vec)
	return vec, nil
}

// Dimensions returns the configured vector length.
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
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

// cosine returns the cosine similarity of two vectors, 0 when lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
