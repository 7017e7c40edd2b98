package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto/v2"

	"kakehashi/internal/domain/models/chat"
)

// WikipediaTool implements the 'wikipedia' tool: full-text search against
// the MediaWiki API with plain-text extracts. Responses are cached in-process
// because lookups for popular topics repeat heavily across conversations.
type WikipediaTool struct {
	client *http.Client
	cache  *ristretto.Cache[string, []byte]
	config *Config
	logger *slog.Logger
}

// NewWikipediaTool creates a new WikipediaTool instance.
func NewWikipediaTool(client *http.Client, config *Config, logger *slog.Logger) (*WikipediaTool, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if config == nil {
		config = DefaultConfig()
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e4,      // ~10x expected items
		MaxCost:     10 << 20, // 10MB of cached extracts
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create wikipedia cache: %w", err)
	}

	return &WikipediaTool{
		client: client,
		cache:  cache,
		config: config,
		logger: logger,
	}, nil
}

// Definition returns the model-facing schema for the wikipedia tool.
func (t *WikipediaTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "wikipedia",
		Description: "Look up encyclopedic background on a topic, person, place, or cultural practice. Returns the most relevant Wikipedia articles with plain-text extracts. Use this for general world knowledge that is not specific to the course materials.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The topic to look up. Be specific (e.g. 'tea ceremony Japan' rather than 'tea').",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Close releases the response cache.
func (t *WikipediaTool) Close() {
	t.cache.Close()
}

// article is one search hit with its extract.
type article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Execute implements Executor.
// Input parameters:
//   - query (string, required): topic to look up
//
// Returns:
//   - {results: [{title, content, url}], query: string}
func (t *WikipediaTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, errors.New("missing required parameter: query (string)")
	}
	query = strings.TrimSpace(query)

	articles, err := t.lookup(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("wikipedia lookup failed: %w", err)
	}

	resultList := make([]map[string]interface{}, len(articles))
	for i, a := range articles {
		resultList[i] = map[string]interface{}{
			"title":   a.Title,
			"content": a.Content,
			"url":     a.URL,
		}
	}

	return map[string]interface{}{
		"results": resultList,
		"query":   query,
	}, nil
}

// lookup fetches articles for a query, via cache when possible.
func (t *WikipediaTool) lookup(ctx context.Context, query string) ([]article, error) {
	cacheKey := strings.ToLower(query)
	if cached, found := t.cache.Get(cacheKey); found {
		var articles []article
		if err := json.Unmarshal(cached, &articles); err == nil {
			t.logger.Debug("wikipedia cache hit", "query", query)
			return articles, nil
		}
		// Corrupt entry, fall through to refetch
		t.cache.Del(cacheKey)
	}

	articles, err := t.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(articles); err == nil {
		t.cache.SetWithTTL(cacheKey, payload, int64(len(payload)), t.config.WikipediaCacheTTL)
	}

	return articles, nil
}

// wikiResponse mirrors the slice of the MediaWiki response we consume.
type wikiResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID  int    `json:"pageid"`
			Index   int    `json:"index"`
			Title   string `json:"title"`
			Extract string `json:"extract"`
			FullURL string `json:"fullurl"`
		} `json:"pages"`
	} `json:"query"`
}

// fetch queries the MediaWiki API: generator=search combined with extracts
// returns search hits and their plain-text content in a single request.
func (t *WikipediaTool) fetch(ctx context.Context, query string) ([]article, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", strconv.Itoa(t.config.WikipediaTopK))
	params.Set("prop", "extracts|info")
	params.Set("explaintext", "1")
	params.Set("inprop", "url")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.config.WikipediaBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed wikiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	// Pages arrive keyed by page ID; the index field carries search rank.
	articles := make([]article, 0, len(parsed.Query.Pages))
	for _, page := range parsed.Query.Pages {
		// Cap on a rune boundary so multi-byte extracts are never split
		// mid-character
		content := page.Extract
		if utf8.RuneCountInString(content) > t.config.WikipediaMaxLength {
			content = string([]rune(content)[:t.config.WikipediaMaxLength])
		}
		articles = append(articles, article{
			Title:   page.Title,
			Content: content,
			URL:     page.FullURL,
		})
	}

	// Restore search ranking lost by the map representation
	sortByIndex(parsed, articles)

	return articles, nil
}

// sortByIndex orders articles by the API's search rank.
func sortByIndex(parsed wikiResponse, articles []article) {
	rank := make(map[string]int, len(parsed.Query.Pages))
	for _, page := range parsed.Query.Pages {
		rank[page.Title] = page.Index
	}
	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			if rank[articles[j].Title] < rank[articles[i].Title] {
				articles[i], articles[j] = articles[j], articles[i]
			}
		}
	}
}
