package chat

import (
	"context"
	"time"
)

// Feedback is a user rating attached to an agent run.
type Feedback struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Key        string    `json:"key"`
	Score      float64   `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// TraceClient talks to the external tracing backend that records agent runs.
type TraceClient interface {
	// CreateFeedback records a score for a run and returns the feedback ID.
	CreateFeedback(ctx context.Context, runID string, score float64, comment string) (string, error)

	// GetFeedback fetches a feedback record by ID.
	GetFeedback(ctx context.Context, feedbackID string) (*Feedback, error)

	// UpdateFeedback overwrites the score and comment of a feedback record.
	UpdateFeedback(ctx context.Context, feedbackID string, score float64, comment string) error

	// ShareRun makes a run's trace publicly viewable and returns the URL.
	ShareRun(ctx context.Context, runID string) (string, error)
}
