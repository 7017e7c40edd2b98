// Package chat orchestrates an exchange: it resolves the conversation, runs
// the reasoning loop, streams events to the client, and persists the outcome.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"kakehashi/internal/config"
	"kakehashi/internal/domain"
	chatmodel "kakehashi/internal/domain/models/chat"
	"kakehashi/internal/domain/repositories"
	"kakehashi/internal/service/chat/agent"
	"kakehashi/internal/service/chat/materializer"
	"kakehashi/internal/service/chat/prompts"
	"kakehashi/internal/service/chat/streaming"
)

// Service orchestrates conversations and exchanges.
type Service struct {
	conversations repositories.ConversationRepository
	loop          *agent.Loop
	sessions      *streaming.Registry
	prompts       *prompts.Library
	txManager     repositories.TransactionManager
	logger        *slog.Logger
}

// NewService creates a new chat orchestrator.
func NewService(
	conversations repositories.ConversationRepository,
	loop *agent.Loop,
	sessions *streaming.Registry,
	promptLibrary *prompts.Library,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		loop:          loop,
		sessions:      sessions,
		prompts:       promptLibrary,
		txManager:     txManager,
		logger:        logger,
	}
}

// SendMessageRequest is one user message aimed at a conversation.
// ConversationID may be empty: the user's active conversation is used, or a
// new one is started if none exists.
type SendMessageRequest struct {
	UserID         string
	ConversationID string
	Message        string
}

// Validate implements input validation for SendMessageRequest.
func (r SendMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.Length(1, config.MaxMessageLength)),
	)
}

// SendMessageResult describes the started exchange. The session streams the
// exchange's events; the terminal settled event carries the outcome.
type SendMessageResult struct {
	SessionID      string
	ConversationID string
	IsNew          bool
	UserTurn       chatmodel.Turn
	Session        *streaming.Session
}

// SendMessage starts an exchange. The reasoning loop runs in the background;
// callers subscribe to the returned session for live events.
//
// The client outcome is settled before anything is persisted. A persistence
// failure after settling is logged, never streamed. If the loop itself fails,
// the user turn is still persisted so the message is not lost.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	conv, isNew, err := s.resolveConversation(ctx, req.UserID, req.ConversationID, req.Message)
	if err != nil {
		return nil, err
	}

	userTurn := chatmodel.NewUserTurn(req.Message)

	sessionID := uuid.New().String()
	session := streaming.NewSession(req.UserID)

	// Register before the goroutine starts so a client re-attaching
	// immediately after the response cannot miss the session.
	if !s.sessions.Register(sessionID, session) {
		return nil, &domain.ConflictError{
			Message:      "session already exists",
			ResourceType: "session",
			ResourceID:   sessionID,
		}
	}

	// The run outlives the HTTP request that started it; detach from the
	// request context so a client disconnect does not abort the exchange.
	go s.run(context.Background(), session, conv, isNew, userTurn)

	return &SendMessageResult{
		SessionID:      sessionID,
		ConversationID: conv.ID,
		IsNew:          isNew,
		UserTurn:       userTurn,
		Session:        session,
	}, nil
}

// resolveConversation finds the target conversation for a message.
func (s *Service) resolveConversation(ctx context.Context, userID, conversationID, message string) (*chatmodel.Conversation, bool, error) {
	if conversationID != "" {
		conv, err := s.conversations.Get(ctx, conversationID)
		if err != nil {
			return nil, false, err
		}
		// A foreign conversation is indistinguishable from a missing one
		if conv.OwnerID != userID {
			return nil, false, &domain.NotFoundError{Message: "conversation not found"}
		}
		return conv, false, nil
	}

	activeID, err := s.conversations.GetActive(ctx, userID)
	if err == nil {
		conv, err := s.conversations.Get(ctx, activeID)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		// Active pointer is stale, start fresh
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	return chatmodel.NewConversation(userID, message), true, nil
}

// run executes the exchange in the background and settles the session.
func (s *Service) run(ctx context.Context, session *streaming.Session, conv *chatmodel.Conversation, isNew bool, userTurn chatmodel.Turn) {
	started := time.Now()

	system, err := s.prompts.Get(prompts.Assistant)
	if err != nil {
		s.settleFailure(ctx, session, conv, isNew, userTurn, err)
		return
	}

	history := make([]chatmodel.Turn, 0, len(conv.Turns)+1)
	history = append(history, conv.Turns...)
	history = append(history, userTurn)

	outcome, err := s.loop.Run(ctx, system, history, session.Emit)
	if err != nil {
		s.settleFailure(ctx, session, conv, isNew, userTurn, err)
		return
	}

	// Settle first: the client's outcome must not wait on storage
	session.Settle(chatmodel.Settled{
		ConversationID: conv.ID,
		TurnID:         outcome.Final.ID,
		RunID:          outcome.RunID,
		Content:        outcome.Final.Content,
		ToolCalls:      outcome.Final.ToolCalls,
	})

	turns := append([]chatmodel.Turn{userTurn}, outcome.Turns...)
	if err := s.persist(ctx, conv, isNew, turns); err != nil {
		s.logger.Error("exchange settled but not persisted",
			"conversation_id", conv.ID,
			"run_id", outcome.RunID,
			"error", &domain.PersistenceError{Op: "append exchange", Cause: err},
		)
		return
	}

	s.logger.Info("exchange complete",
		"conversation_id", conv.ID,
		"run_id", outcome.RunID,
		"turns", len(turns),
		"duration", time.Since(started),
	)
}

// settleFailure terminates the stream with the error and keeps the user's
// message by persisting the user turn alone.
func (s *Service) settleFailure(ctx context.Context, session *streaming.Session, conv *chatmodel.Conversation, isNew bool, userTurn chatmodel.Turn, cause error) {
	s.logger.Error("exchange failed",
		"conversation_id", conv.ID,
		"error", cause,
	)

	session.Settle(chatmodel.Settled{
		ConversationID: conv.ID,
		Error:          cause.Error(),
	})

	if err := s.persist(ctx, conv, isNew, []chatmodel.Turn{userTurn}); err != nil {
		s.logger.Error("failed to persist user turn after exchange failure",
			"conversation_id", conv.ID,
			"error", &domain.PersistenceError{Op: "append user turn", Cause: err},
		)
	}
}

// persist writes the exchange's turns and the active-conversation pointer in
// one transaction, creating the conversation row first when needed.
func (s *Service) persist(ctx context.Context, conv *chatmodel.Conversation, isNew bool, turns []chatmodel.Turn) error {
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if isNew {
			if err := s.conversations.Create(txCtx, conv); err != nil {
				return err
			}
		}
		if err := s.conversations.AppendTurns(txCtx, conv.ID, turns); err != nil {
			return err
		}
		return s.conversations.SetActive(txCtx, conv.OwnerID, conv.ID)
	})
}

// Subscribe attaches to a running (or recently settled) session's stream.
// Returns domain.ErrNotFound if the session is unknown. A foreign session is
// indistinguishable from a missing one.
func (s *Service) Subscribe(ctx context.Context, userID, sessionID string) (<-chan chatmodel.StreamEvent, error) {
	session := s.sessions.Get(sessionID)
	if session == nil || session.Owner() != userID {
		return nil, &domain.NotFoundError{Message: "session not found"}
	}
	return session.Subscribe(ctx), nil
}

// ListConversations returns the user's conversation summaries.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]chatmodel.Summary, error) {
	return s.conversations.ListByOwner(ctx, userID)
}

// GetMirror returns the client-facing projection of a conversation.
func (s *Service) GetMirror(ctx context.Context, userID, conversationID string) (*chatmodel.Mirror, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, &domain.NotFoundError{Message: "conversation not found"}
	}
	return materializer.Materialize(conv)
}

// ActiveConversation returns the mirror of the user's active conversation.
func (s *Service) ActiveConversation(ctx context.Context, userID string) (*chatmodel.Mirror, error) {
	activeID, err := s.conversations.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.GetMirror(ctx, userID, activeID)
}
