// Package ingest loads course material chunks into the vector store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"kakehashi/internal/config"
	"kakehashi/internal/domain"
	"kakehashi/internal/domain/models/knowledge"
	"kakehashi/internal/domain/repositories"
	chatservice "kakehashi/internal/domain/services/chat"
)

// Service embeds and stores document chunks for retrieval.
type Service struct {
	embedder chatservice.Embedder
	chunks   repositories.ChunkRepository
	logger   *slog.Logger
}

// NewService creates a new ingest service.
func NewService(embedder chatservice.Embedder, chunks repositories.ChunkRepository, logger *slog.Logger) *Service {
	return &Service{
		embedder: embedder,
		chunks:   chunks,
		logger:   logger,
	}
}

// ChunkInput is one chunk of a document submitted for ingestion.
type ChunkInput struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Request ingests the chunks of one document. Existing chunks of the same
// document are replaced.
type Request struct {
	DocumentID string       `json:"document_id"`
	Chunks     []ChunkInput `json:"chunks"`
}

// Validate implements input validation for Request.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DocumentID, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Chunks, validation.Required, validation.Length(1, config.MaxChunksPerRequest)),
	)
}

// Result reports what an ingestion stored.
type Result struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// Ingest embeds every chunk and replaces the document's stored chunks.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}
	for i, chunk := range req.Chunks {
		if chunk.Content == "" {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("chunk %d: content is required", i)}
		}
		if len(chunk.Content) > config.MaxChunkContentLength {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("chunk %d: content exceeds %d characters", i, config.MaxChunkContentLength),
			}
		}
	}

	stored := make([]knowledge.Chunk, len(req.Chunks))
	for i, chunk := range req.Chunks {
		embedding, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		stored[i] = knowledge.Chunk{
			ID:         uuid.New().String(),
			DocumentID: req.DocumentID,
			Content:    chunk.Content,
			Metadata:   chunk.Metadata,
			Embedding:  embedding,
			CreatedAt:  time.Now(),
		}
	}

	// Replace-then-insert keeps re-ingestion idempotent per document
	if err := s.chunks.DeleteByDocument(ctx, req.DocumentID); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	}
	if err := s.chunks.InsertChunks(ctx, stored); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	s.logger.Info("document ingested", "document_id", req.DocumentID, "chunks", len(stored))

	return &Result{DocumentID: req.DocumentID, Chunks: len(stored)}, nil
}
