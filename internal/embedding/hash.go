package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension is the width of hash embeddings.
const DefaultDimension = 384

// HashEmbedder produces deterministic bag-of-words vectors. Each word is
// hashed into a bucket and weighted by 1/(position+1); the result is
// L2-normalised. It needs no network access.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder. A non-positive dimension selects
// DefaultDimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed embeds each text.
func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.Vector(t)
	}
	return out, nil
}

// EmbedSingle embeds one text.
func (h *HashEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return h.Vector(text), nil
}

// Vector is the synchronous form of EmbedSingle.
func (h *HashEmbedder) Vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for i, w := range Tokenize(text) {
		v[bucket(w, h.dimension)] += 1 / float32(i+1)
	}
	return Normalize(v)
}

// Model names the embedder.
func (h *HashEmbedder) Model() string {
	return "hash-bow"
}

// Dimension returns the vector width.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashString is the 32-bit multiply-by-31 string hash.
func HashString(s string) int32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return h
}

func bucket(word string, dim int) int {
	h := int64(HashString(word))
	if h < 0 {
		h = -h
	}
	return int(h % int64(dim))
}

// Normalize scales v to unit length in place. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// New selects an embedder by provider name. Anything other than
// "openrouter" uses hashing.
func New(provider string, cfg Config) (Embedder, error) {
	if provider == "openrouter" {
		return NewClient(cfg)
	}
	return NewHashEmbedder(cfg.Dimension), nil
}
