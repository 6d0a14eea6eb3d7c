// Package embedding defines the Provider interface for text embedding
// backends used to index and search the Census dataset catalog.
//
// Implementations must be safe for concurrent use.
package embedding

import "context"

// Provider maps text to dense float32 vectors.
//
// All vectors from one Provider share the same length (Dimensions). Vectors
// from different models must never be compared, which is why indexes record
// the ModelID they were built with.
type Provider interface {
	// Embed computes the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for texts in one call. The i-th result
	// corresponds to texts[i]. On error no partial results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length, or 0 if it cannot be determined.
	Dimensions() int

	// ModelID returns the model identifier, e.g. "all-minilm".
	ModelID() string
}
