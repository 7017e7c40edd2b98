package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kakehashi/internal/domain/models/chat"
	"kakehashi/internal/domain/repositories"
	chatservice "kakehashi/internal/domain/services/chat"
)

// RetrieverTool implements the 'course_materials' tool: semantic search over
// the ingested document chunks. The query is embedded and matched against
// stored chunk embeddings by cosine similarity.
type RetrieverTool struct {
	embedder chatservice.Embedder
	chunks   repositories.ChunkRepository
	config   *Config
	logger   *slog.Logger
}

// NewRetrieverTool creates a new RetrieverTool instance.
func NewRetrieverTool(embedder chatservice.Embedder, chunks repositories.ChunkRepository, config *Config, logger *slog.Logger) *RetrieverTool {
	if config == nil {
		config = DefaultConfig()
	}
	return &RetrieverTool{
		embedder: embedder,
		chunks:   chunks,
		config:   config,
		logger:   logger,
	}
}

// Definition returns the model-facing schema for the course_materials tool.
func (t *RetrieverTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "course_materials",
		Description: "Search the course's own learning materials for passages relevant to the learner's question. Use this first for anything about lesson content, vocabulary, assignments, or cultural notes covered in the course.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to search for in the course materials.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Execute implements Executor.
// Input parameters:
//   - query (string, required): text to search for
//
// Returns:
//   - {results: [{content, document_id, similarity, metadata}], query: string}
func (t *RetrieverTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, errors.New("missing required parameter: query (string)")
	}
	query = strings.TrimSpace(query)

	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := t.chunks.SearchSimilar(ctx, embedding, t.config.RetrieverTopK)
	if err != nil {
		return nil, fmt.Errorf("search course materials: %w", err)
	}

	t.logger.Debug("course materials retrieved", "query", query, "matches", len(matches))

	resultList := make([]map[string]interface{}, len(matches))
	for i, m := range matches {
		resultList[i] = map[string]interface{}{
			"content":     m.Content,
			"document_id": m.DocumentID,
			"similarity":  m.Similarity,
			"metadata":    m.Metadata,
		}
	}

	return map[string]interface{}{
		"results": resultList,
		"query":   query,
	}, nil
}
