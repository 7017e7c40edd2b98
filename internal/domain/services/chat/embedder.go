package chat

import "context"

// Embedder turns text into a vector embedding.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
