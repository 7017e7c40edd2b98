// Package feedback records user ratings against traced agent runs.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	chatservice "kakehashi/internal/domain/services/chat"
)

// feedbackKey is the metric name feedback scores are recorded under.
const feedbackKey = "user_score"

// LangSmithClient implements the TraceClient interface against the LangSmith
// REST API.
type LangSmithClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLangSmithClient creates a new LangSmith API client.
func NewLangSmithClient(baseURL, apiKey string, client *http.Client) *LangSmithClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &LangSmithClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}
}

// do sends an authenticated JSON request and decodes the response into out
// when out is non-nil.
func (c *LangSmithClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("langsmith %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateFeedback records a score for a run. The feedback ID is generated
// client-side so the call has a stable identifier even if the response body
// is lost.
func (c *LangSmithClient) CreateFeedback(ctx context.Context, runID string, score float64, comment string) (string, error) {
	feedbackID := uuid.New().String()

	payload := map[string]interface{}{
		"id":      feedbackID,
		"run_id":  runID,
		"key":     feedbackKey,
		"score":   score,
		"comment": comment,
	}

	if err := c.do(ctx, http.MethodPost, "/feedback", payload, nil); err != nil {
		return "", err
	}
	return feedbackID, nil
}

// GetFeedback fetches a feedback record by ID.
func (c *LangSmithClient) GetFeedback(ctx context.Context, feedbackID string) (*chatservice.Feedback, error) {
	var out struct {
		ID         string    `json:"id"`
		RunID      string    `json:"run_id"`
		Key        string    `json:"key"`
		Score      float64   `json:"score"`
		Comment    string    `json:"comment"`
		CreatedAt  time.Time `json:"created_at"`
		ModifiedAt time.Time `json:"modified_at"`
	}

	if err := c.do(ctx, http.MethodGet, "/feedback/"+feedbackID, nil, &out); err != nil {
		return nil, err
	}

	return &chatservice.Feedback{
		ID:         out.ID,
		RunID:      out.RunID,
		Key:        out.Key,
		Score:      out.Score,
		Comment:    out.Comment,
		CreatedAt:  out.CreatedAt,
		ModifiedAt: out.ModifiedAt,
	}, nil
}

// UpdateFeedback overwrites the score and comment of a feedback record.
func (c *LangSmithClient) UpdateFeedback(ctx context.Context, feedbackID string, score float64, comment string) error {
	payload := map[string]interface{}{
		"score":   score,
		"comment": comment,
	}
	return c.do(ctx, http.MethodPatch, "/feedback/"+feedbackID, payload, nil)
}

// ShareRun makes a run's trace publicly viewable and returns the share URL.
func (c *LangSmithClient) ShareRun(ctx context.Context, runID string) (string, error) {
	var out struct {
		ShareToken string `json:"share_token"`
	}

	if err := c.do(ctx, http.MethodPut, "/runs/"+runID+"/share", map[string]interface{}{}, &out); err != nil {
		return "", err
	}
	if out.ShareToken == "" {
		return "", fmt.Errorf("share response missing token")
	}

	return "https://smith.langchain.com/public/" + out.ShareToken + "/r", nil
}
