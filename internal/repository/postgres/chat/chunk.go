package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"kakehashi/internal/domain/models/knowledge"
	"kakehashi/internal/domain/repositories"
	"kakehashi/internal/repository/postgres"
)

// PostgresChunkRepository implements the ChunkRepository interface using
// PostgreSQL with the pgvector extension. Similarity search uses cosine
// distance over an HNSW index.
type PostgresChunkRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewChunkRepository creates a new PostgresChunkRepository
func NewChunkRepository(cfg *postgres.RepositoryConfig) repositories.ChunkRepository {
	return &PostgresChunkRepository{
		pool:   cfg.Pool,
		logger: cfg.Logger,
	}
}

// InsertChunks stores a batch of embedded chunks
func (r *PostgresChunkRepository) InsertChunks(ctx context.Context, chunks []knowledge.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO document_chunks (id, document_id, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := postgres.GetExecutor(ctx, r.pool)

	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if chunk.Metadata == nil {
			metadata = []byte("{}")
		}

		_, err = executor.Exec(ctx, query,
			chunk.ID,
			chunk.DocumentID,
			chunk.Content,
			metadata,
			pgvector.NewVector(chunk.Embedding),
			chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	r.logger.Debug("chunks inserted", "count", len(chunks))
	return nil
}

// SearchSimilar returns the topK chunks nearest to the query embedding,
// ordered by descending cosine similarity
func (r *PostgresChunkRepository) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]knowledge.Match, error) {
	query := `
		SELECT id, document_id, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	matches := []knowledge.Match{}
	for rows.Next() {
		var m knowledge.Match
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Content, &metadata, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			r.logger.Warn("failed to parse chunk metadata", "chunk_id", m.ID, "error", err)
			m.Metadata = map[string]string{}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk matches: %w", err)
	}

	return matches, nil
}

// DeleteByDocument removes all chunks of a document
func (r *PostgresChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	executor := postgres.GetExecutor(ctx, r.pool)

	_, err := executor.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}

	return nil
}
