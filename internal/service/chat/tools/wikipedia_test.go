package tools

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const wikiPayload = `{
	"query": {
		"pages": {
			"123": {"pageid": 123, "index": 2, "title": "Chanoyu", "extract": "The Japanese tea ceremony.", "fullurl": "https://en.wikipedia.org/wiki/Chanoyu"},
			"456": {"pageid": 456, "index": 1, "title": "Tea ceremony", "extract": "A ritualized form of making tea.", "fullurl": "https://en.wikipedia.org/wiki/Tea_ceremony"}
		}
	}
}`

func newWikipediaFixture(t *testing.T, handler http.HandlerFunc) (*WikipediaTool, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.WikipediaBaseURL = server.URL

	tool, err := NewWikipediaTool(server.Client(), cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWikipediaTool failed: %v", err)
	}
	t.Cleanup(tool.Close)

	return tool, server
}

func TestWikipediaTool_Execute(t *testing.T) {
	var gotQuery atomic.Value
	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("gsrsearch"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wikiPayload))
	})

	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "tea ceremony"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotQuery.Load() != "tea ceremony" {
		t.Errorf("expected gsrsearch 'tea ceremony', got %v", gotQuery.Load())
	}

	resultMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if resultMap["query"] != "tea ceremony" {
		t.Errorf("expected query echo, got %v", resultMap["query"])
	}

	results, ok := resultMap["results"].([]map[string]interface{})
	if !ok {
		t.Fatal("results is not a slice of maps")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// Results must follow the API's search ranking (index field)
	if results[0]["title"] != "Tea ceremony" {
		t.Errorf("expected first result 'Tea ceremony', got %v", results[0]["title"])
	}
	if results[1]["title"] != "Chanoyu" {
		t.Errorf("expected second result 'Chanoyu', got %v", results[1]["title"])
	}
	if results[0]["url"] != "https://en.wikipedia.org/wiki/Tea_ceremony" {
		t.Errorf("unexpected url: %v", results[0]["url"])
	}
}

func TestWikipediaTool_Execute_MissingQuery(t *testing.T) {
	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	cases := []map[string]interface{}{
		{},
		{"query": ""},
		{"query": "   "},
		{"query": 42},
	}

	for _, input := range cases {
		if _, err := tool.Execute(context.Background(), input); err == nil {
			t.Errorf("expected error for input %v", input)
		}
	}
}

func TestWikipediaTool_Execute_ServerError(t *testing.T) {
	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"query": "anything"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestWikipediaTool_Execute_TruncatesLongExtracts(t *testing.T) {
	long := strings.Repeat("a", 10000)
	payload := `{"query": {"pages": {"1": {"pageid": 1, "index": 1, "title": "Long", "extract": "` + long + `", "fullurl": "https://example.org/Long"}}}}`

	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})

	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "long article"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	results := result.(map[string]interface{})["results"].([]map[string]interface{})
	content := results[0]["content"].(string)
	if len(content) != DefaultConfig().WikipediaMaxLength {
		t.Errorf("expected extract capped at %d chars, got %d", DefaultConfig().WikipediaMaxLength, len(content))
	}
}

func TestWikipediaTool_Execute_TruncatesOnRuneBoundary(t *testing.T) {
	// Multi-byte extract longer than the cap: truncation must not split a rune
	long := strings.Repeat("茶", 10000)
	payload := `{"query": {"pages": {"1": {"pageid": 1, "index": 1, "title": "Tea", "extract": "` + long + `", "fullurl": "https://example.org/Tea"}}}}`

	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})

	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "tea"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	results := result.(map[string]interface{})["results"].([]map[string]interface{})
	content := results[0]["content"].(string)
	if !utf8.ValidString(content) {
		t.Error("truncated extract is not valid UTF-8")
	}
	if got := utf8.RuneCountInString(content); got != DefaultConfig().WikipediaMaxLength {
		t.Errorf("expected extract capped at %d runes, got %d", DefaultConfig().WikipediaMaxLength, got)
	}
}

func TestWikipediaTool_Execute_CachesResponses(t *testing.T) {
	var hits atomic.Int32
	tool, _ := newWikipediaFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(wikiPayload))
	})

	ctx := context.Background()
	if _, err := tool.Execute(ctx, map[string]interface{}{"query": "Tea Ceremony"}); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	// Ristretto applies sets asynchronously
	time.Sleep(50 * time.Millisecond)

	// Same query, different casing: should hit the cache
	if _, err := tool.Execute(ctx, map[string]interface{}{"query": "tea ceremony"}); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}
}
