// Package embedding produces vector embeddings via the Gemini API.
package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Dimensions is the embedding width stored in document_chunks.embedding.
// Changing it requires a migration of the vector column.
const Dimensions int32 = 768

// GenAIEmbedder implements the Embedder interface using the Gemini
// embedding models.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder creates a new Gemini-backed embedder.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIEmbedder{
		client: client,
		model:  model,
	}, nil
}

// Embed returns the embedding vector for the given text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := Dimensions
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}

	return resp.Embeddings[0].Values, nil
}
