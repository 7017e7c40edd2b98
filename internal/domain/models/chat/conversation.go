package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxTitleLength bounds conversation titles derived from the first message.
const MaxTitleLength = 100

// Conversation is the durable state of one chat: an ordered transcript of
// turns plus metadata. Version is the optimistic concurrency token for
// transcript appends.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	SharePath *string   `json:"share_path,omitempty"`
	Turns     []Turn    `json:"turns"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an unsaved conversation for an owner.
// The title is derived from the first user message.
func NewConversation(ownerID, firstMessage string) *Conversation {
	id := uuid.New().String()
	now := time.Now()
	return &Conversation{
		ID:        id,
		OwnerID:   ownerID,
		Title:     DeriveTitle(firstMessage),
		Path:      fmt.Sprintf("/chat/%s", id),
		Turns:     []Turn{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveTitle truncates a message to MaxTitleLength characters for use as a
// conversation title.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxTitleLength])
}

// Summary is the list-view projection of a conversation (no transcript).
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindTurnByRunID returns the index of the turn carrying the given run ID,
// or -1 if no turn matches.
func (c *Conversation) FindTurnByRunID(runID string) int {
	for i := range c.Turns {
		if c.Turns[i].RunID != nil && *c.Turns[i].RunID == runID {
			return i
		}
	}
	return -1
}
