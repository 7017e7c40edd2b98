package tools

import "time"

// Config centralizes configuration for all tools.
// Replaces magic numbers scattered throughout tool implementations.
type Config struct {
	// Wikipedia tool configuration
	WikipediaBaseURL   string        // MediaWiki API endpoint
	WikipediaTopK      int           // Number of articles per lookup
	WikipediaMaxLength int           // Maximum extract length per article
	WikipediaCacheTTL  time.Duration // How long lookup responses stay cached

	// Knowledge retriever configuration
	RetrieverTopK int // Number of chunks per similarity search
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() *Config {
	return &Config{
		WikipediaBaseURL:   "https://en.wikipedia.org/w/api.php",
		WikipediaTopK:      3,
		WikipediaMaxLength: 4000,
		WikipediaCacheTTL:  time.Hour,

		RetrieverTopK: 4,
	}
}
