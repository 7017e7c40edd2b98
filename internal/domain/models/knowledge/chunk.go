package knowledge

import "time"

// Chunk is one embedded fragment of an ingested document.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Match is a chunk returned from similarity search, with its cosine
// similarity to the query (1.0 = identical direction).
type Match struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
