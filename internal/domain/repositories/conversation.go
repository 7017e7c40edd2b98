package repositories

import (
	"context"

	"kakehashi/internal/domain/models/chat"
)

// ConversationRepository persists conversation transcripts.
//
// AppendTurns is the only way turns enter a transcript; it must tolerate
// concurrent writers without losing turns (optimistic concurrency with
// bounded retry). AttachFeedback is the only permitted mutation of an
// already-appended turn.
type ConversationRepository interface {
	// Create inserts a new conversation row.
	Create(ctx context.Context, conv *chat.Conversation) error

	// Get returns a conversation with its full transcript.
	// Returns domain.ErrNotFound if no row exists.
	Get(ctx context.Context, id string) (*chat.Conversation, error)

	// ListByOwner returns conversation summaries for a user, most recently
	// updated first.
	ListByOwner(ctx context.Context, ownerID string) ([]chat.Summary, error)

	// AppendTurns appends turns to the transcript. Concurrent appends to the
	// same conversation interleave; no appended turn is ever lost. Returns a
	// *domain.ConflictError only after retries are exhausted.
	AppendTurns(ctx context.Context, conversationID string, turns []chat.Turn) error

	// AttachFeedback sets the feedback ID on the turn carrying runID.
	// Returns domain.ErrNotFound if no turn of the owner matches.
	AttachFeedback(ctx context.Context, ownerID, runID, feedbackID string) error

	// GetActive returns the user's active conversation ID.
	// Returns domain.ErrNotFound if the user has no active conversation.
	GetActive(ctx context.Context, userID string) (string, error)

	// SetActive durably points the user at a conversation.
	SetActive(ctx context.Context, userID, conversationID string) error
}
