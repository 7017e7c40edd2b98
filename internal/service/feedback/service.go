package feedback

import (
	"context"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"kakehashi/internal/domain"
	"kakehashi/internal/domain/repositories"
	chatservice "kakehashi/internal/domain/services/chat"
)

// Service coordinates feedback between the tracing backend and the stored
// transcript: the trace backend owns the feedback record, the transcript
// keeps a pointer to it on the rated turn.
type Service struct {
	trace         chatservice.TraceClient
	conversations repositories.ConversationRepository
	logger        *slog.Logger
}

// NewService creates a new feedback service.
func NewService(trace chatservice.TraceClient, conversations repositories.ConversationRepository, logger *slog.Logger) *Service {
	return &Service{
		trace:         trace,
		conversations: conversations,
		logger:        logger,
	}
}

// CreateRequest rates an agent run.
type CreateRequest struct {
	RunID   string  `json:"run_id"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Validate implements input validation for CreateRequest.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RunID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Score, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.Comment, validation.Length(0, 4000)),
	)
}

// Create records feedback for a run and attaches the feedback ID to the
// rated assistant turn in the owner's transcript.
func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*chatservice.Feedback, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	feedbackID, err := s.trace.CreateFeedback(ctx, req.RunID, req.Score, req.Comment)
	if err != nil {
		return nil, err
	}

	// The trace record is the source of truth; a failed transcript update
	// only loses the pointer, so it is logged rather than surfaced.
	if err := s.conversations.AttachFeedback(ctx, ownerID, req.RunID, feedbackID); err != nil {
		s.logger.Error("failed to attach feedback to transcript",
			"run_id", req.RunID,
			"feedback_id", feedbackID,
			"error", err,
		)
	}

	return &chatservice.Feedback{
		ID:      feedbackID,
		RunID:   req.RunID,
		Key:     feedbackKey,
		Score:   req.Score,
		Comment: req.Comment,
	}, nil
}

// Get fetches a feedback record from the tracing backend.
func (s *Service) Get(ctx context.Context, feedbackID string) (*chatservice.Feedback, error) {
	return s.trace.GetFeedback(ctx, feedbackID)
}

// UpdateRequest revises an existing rating.
type UpdateRequest struct {
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Validate implements input validation for UpdateRequest.
func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Score, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.Comment, validation.Length(0, 4000)),
	)
}

// Update overwrites the score and comment of a feedback record.
func (s *Service) Update(ctx context.Context, feedbackID string, req UpdateRequest) error {
	if err := req.Validate(); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	return s.trace.UpdateFeedback(ctx, feedbackID, req.Score, req.Comment)
}

// ShareRun publishes a run's trace and returns its public URL.
func (s *Service) ShareRun(ctx context.Context, runID string) (string, error) {
	return s.trace.ShareRun(ctx, runID)
}
