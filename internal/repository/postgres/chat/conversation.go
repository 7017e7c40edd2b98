package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"kakehashi/internal/config"
	"kakehashi/internal/domain"
	chatModels "kakehashi/internal/domain/models/chat"
	"kakehashi/internal/domain/repositories"
	"kakehashi/internal/repository/postgres"
)

// PostgresConversationRepository implements the ConversationRepository
// interface using PostgreSQL. Transcripts are stored as a JSONB turn array
// on the conversation row; appends use optimistic concurrency on the
// version column with bounded retry.
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(cfg *postgres.RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   cfg.Pool,
		logger: cfg.Logger,
	}
}

// Create inserts a new conversation row
func (r *PostgresConversationRepository) Create(ctx context.Context, conv *chatModels.Conversation) error {
	turns, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	query := `
		INSERT INTO conversations (id, owner_user_id, title, path, share_path, turns, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	executor := postgres.GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		conv.ID,
		conv.OwnerID,
		conv.Title,
		conv.Path,
		conv.SharePath,
		turns,
		conv.Version,
		conv.CreatedAt,
		conv.UpdatedAt,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("conversation %s already exists", conv.ID),
				ResourceType: "conversation",
				ResourceID:   conv.ID,
			}
		}
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// Get retrieves a conversation with its full transcript
func (r *PostgresConversationRepository) Get(ctx context.Context, id string) (*chatModels.Conversation, error) {
	query := `
		SELECT id, owner_user_id, title, path, share_path, turns, version, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv chatModels.Conversation
	var turns []byte

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.Title,
		&conv.Path,
		&conv.SharePath,
		&turns,
		&conv.Version,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if err := json.Unmarshal(turns, &conv.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns for conversation %s: %w", id, err)
	}

	return &conv, nil
}

// ListByOwner retrieves conversation summaries for a user, most recently updated first
func (r *PostgresConversationRepository) ListByOwner(ctx context.Context, ownerID string) ([]chatModels.Summary, error) {
	query := `
		SELECT id, title, path, created_at, updated_at
		FROM conversations
		WHERE owner_user_id = $1
		ORDER BY updated_at DESC
	`

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []chatModels.Summary{}
	for rows.Next() {
		var s chatModels.Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.Path, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return summaries, nil
}

// AppendTurns appends turns to a transcript using compare-and-swap on the
// version column. On a version conflict the append is retried against the
// fresh row, so concurrent writers interleave without losing turns.
func (r *PostgresConversationRepository) AppendTurns(ctx context.Context, conversationID string, turns []chatModels.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	query := `
		UPDATE conversations
		SET turns = turns || $2::jsonb, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3
	`

	executor := postgres.GetExecutor(ctx, r.pool)

	for attempt := 0; attempt < config.MaxAppendRetries; attempt++ {
		version, err := r.currentVersion(ctx, conversationID)
		if err != nil {
			return err
		}

		tag, err := executor.Exec(ctx, query, conversationID, payload, version)
		if err != nil {
			return fmt.Errorf("append turns: %w", err)
		}

		if tag.RowsAffected() == 1 {
			return nil
		}

		// Version moved under us - another writer appended first. Reload
		// and retry against the new version.
		r.logger.Debug("append conflict, retrying",
			"conversation_id", conversationID,
			"version", version,
			"attempt", attempt+1,
		)
	}

	return &domain.ConflictError{
		Message:      fmt.Sprintf("conversation %s: append retries exhausted", conversationID),
		ResourceType: "conversation",
		ResourceID:   conversationID,
	}
}

// currentVersion reads the current version of a conversation row
func (r *PostgresConversationRepository) currentVersion(ctx context.Context, conversationID string) (int64, error) {
	executor := postgres.GetExecutor(ctx, r.pool)

	var version int64
	err := executor.QueryRow(ctx, `SELECT version FROM conversations WHERE id = $1`, conversationID).Scan(&version)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return 0, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("read conversation version: %w", err)
	}

	return version, nil
}

// AttachFeedback sets the feedback ID on the turn carrying runID. This is the
// only post-hoc turn mutation the store permits; it rewrites the transcript
// under the same compare-and-swap discipline as AppendTurns.
func (r *PostgresConversationRepository) AttachFeedback(ctx context.Context, ownerID, runID, feedbackID string) error {
	match, err := json.Marshal([]map[string]string{{"run_id": runID}})
	if err != nil {
		return fmt.Errorf("marshal run filter: %w", err)
	}

	executor := postgres.GetExecutor(ctx, r.pool)

	var conversationID string
	err = executor.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE owner_user_id = $1 AND turns @> $2::jsonb
	`, ownerID, match).Scan(&conversationID)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		return fmt.Errorf("find conversation for run: %w", err)
	}

	for attempt := 0; attempt < config.MaxAppendRetries; attempt++ {
		conv, err := r.Get(ctx, conversationID)
		if err != nil {
			return err
		}

		idx := conv.FindTurnByRunID(runID)
		if idx < 0 {
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}
		conv.Turns[idx].FeedbackID = &feedbackID

		payload, err := json.Marshal(conv.Turns)
		if err != nil {
			return fmt.Errorf("marshal turns: %w", err)
		}

		tag, err := executor.Exec(ctx, `
			UPDATE conversations
			SET turns = $2::jsonb, updated_at = now(), version = version + 1
			WHERE id = $1 AND version = $3
		`, conversationID, payload, conv.Version)
		if err != nil {
			return fmt.Errorf("attach feedback: %w", err)
		}

		if tag.RowsAffected() == 1 {
			return nil
		}
	}

	return &domain.ConflictError{
		Message:      fmt.Sprintf("conversation %s: feedback attach retries exhausted", conversationID),
		ResourceType: "conversation",
		ResourceID:   conversationID,
	}
}

// GetActive returns the user's active conversation ID
func (r *PostgresConversationRepository) GetActive(ctx context.Context, userID string) (string, error) {
	executor := postgres.GetExecutor(ctx, r.pool)

	var conversationID string
	err := executor.QueryRow(ctx, `
		SELECT conversation_id FROM active_conversations WHERE user_id = $1
	`, userID).Scan(&conversationID)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return "", fmt.Errorf("active conversation for user %s: %w", userID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("get active conversation: %w", err)
	}

	return conversationID, nil
}

// SetActive durably points the user at a conversation
func (r *PostgresConversationRepository) SetActive(ctx context.Context, userID, conversationID string) error {
	executor := postgres.GetExecutor(ctx, r.pool)

	_, err := executor.Exec(ctx, `
		INSERT INTO active_conversations (user_id, conversation_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET conversation_id = EXCLUDED.conversation_id, updated_at = now()
	`, userID, conversationID)
	if err != nil {
		return fmt.Errorf("set active conversation: %w", err)
	}

	return nil
}
