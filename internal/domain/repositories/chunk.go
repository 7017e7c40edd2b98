package repositories

import (
	"context"

	"kakehashi/internal/domain/models/knowledge"
)

// ChunkRepository stores embedded document chunks for retrieval.
type ChunkRepository interface {
	// InsertChunks stores a batch of embedded chunks.
	InsertChunks(ctx context.Context, chunks []knowledge.Chunk) error

	// SearchSimilar returns the topK chunks nearest to the query embedding,
	// ordered by descending similarity.
	SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]knowledge.Match, error)

	// DeleteByDocument removes all chunks of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}
