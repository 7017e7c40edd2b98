package config

const (
	// MaxMessageLength is the maximum length for a single chat message.
	// Limited to keep prompts within a predictable token budget.
	MaxMessageLength = 32000

	// MaxAgentIterations bounds the tool-use loop for one exchange. The
	// loop fails the run rather than iterate past this.
	MaxAgentIterations = 10

	// MaxAppendRetries bounds optimistic-concurrency retries when appending
	// turns to a conversation under concurrent writers.
	MaxAppendRetries = 5

	// MaxChunkContentLength is the maximum length for a single ingested
	// document chunk.
	MaxChunkContentLength = 8000

	// MaxChunksPerRequest bounds one ingestion request.
	MaxChunksPerRequest = 200
)
