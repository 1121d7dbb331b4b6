package chromemstore

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// DefaultDimensions is the size of vectors produced by HashEmbedder.
const DefaultDimensions = 256

// ErrEmptyText is returned when there is nothing to embed.
var ErrEmptyText = errors.New("nothing to embed")

// HashEmbedder turns text into a normalized bag-of-words vector using the
// hashing trick. Tokens carrying an element keyword also set that
// element's dimension, so lexically different texts in the same register
// land near each other. It needs no model and no network.
type HashEmbedder struct {
	Dimensions int
}

// Func returns the embedder as a chromem.EmbeddingFunc.
func (h HashEmbedder) Func() chromem.EmbeddingFunc {
	return h.Embed
}

// Embed implements chromem.EmbeddingFunc.
func (h HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := h.Dimensions
	if dims <= len(element.All) {
		dims = DefaultDimensions
	}
	tokens := signal.Tokenize(signal.Normalize(text))
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float32, dims)
	// The first len(element.All) dimensions are reserved for elements.
	reserved := len(element.All)
	for _, tok := range tokens {
		hf := fnv.New32a()
		hf.Write([]byte(tok))
		sum := hf.Sum32()
		idx := reserved + int(sum%uint32(dims-reserved))
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
		if e, ok := element.Lookup(tok); ok {
			vec[int(e)-1] += 2
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, ErrEmptyText
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
