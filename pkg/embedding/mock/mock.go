// Package mock provides a deterministic, offline embedding.Provider.
//
// Vectors are built by feature hashing: each lower-cased word is hashed with
// BLAKE3 into one of Dims buckets with a +1 or -1 sign, and the result is
// L2-normalised. Texts sharing words therefore score a higher cosine
// similarity, which is enough to exercise ranking in tests and demos.
package mock

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/zeebo/blake3"

	"github.com/rhuss/mcp-census/pkg/embedding"
)

// DefaultDims matches all-minilm so mock indexes have a realistic shape.
const DefaultDims = 384

var _ embedding.Provider = (*Provider)(nil)

// Provider is a deterministic hashing embedder.
type Provider struct {
	Dims  int
	Model string

	// Err, if non-nil, is returned from every call. With FailAfter > 0 it
	// is only returned by EmbedBatch calls after the first FailAfter.
	Err       error
	FailAfter int

	mu           sync.Mutex
	batchCalls   int
	embedCalls   int
	texts        int
	largestBatch int
}

// New returns a Provider with the given vector length (DefaultDims if <= 0).
func New(dims int) *Provider {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &Provider{Dims: dims, Model: "mock-hash"}
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.embedCalls++
	p.texts++
	err := p.Err
	if p.FailAfter > 0 {
		err = nil
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Vector(text, p.Dimensions()), nil
}

// EmbedBatch implements embedding.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.batchCalls++
	p.texts += len(texts)
	p.largestBatch = max(p.largestBatch, len(texts))
	err := p.Err
	if p.FailAfter > 0 && p.batchCalls <= p.FailAfter {
		err = nil
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, p.Dimensions())
	}
	return out, nil
}

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return DefaultDims
	}
	return p.Dims
}

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-hash"
	}
	return p.Model
}

// Calls reports how many Embed and EmbedBatch calls were made and the total
// number of texts embedded.
func (p *Provider) Calls() (embed, batch, texts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedCalls, p.batchCalls, p.texts
}

// LargestBatch reports the most texts seen in a single EmbedBatch call.
func (p *Provider) LargestBatch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.largestBatch
}

// Vector returns the feature-hashed unit vector for text.
func Vector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		sum := blake3.Sum256([]byte(w))
		idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(dims)
		if sum[4]&1 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
