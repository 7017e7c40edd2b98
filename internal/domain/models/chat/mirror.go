package chat

// EntryKind identifies how a mirror entry renders on the client.
type EntryKind string

const (
	EntryUser         EntryKind = "user"
	EntryAssistant    EntryKind = "assistant"
	EntryToolActivity EntryKind = "tool_activity"
)

// MirrorEntry is one renderable item in a client mirror.
type MirrorEntry struct {
	ID         string     `json:"id"`
	Kind       EntryKind  `json:"kind"`
	Text       string     `json:"text,omitempty"`
	RunID      *string    `json:"run_id,omitempty"`
	FeedbackID *string    `json:"feedback_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Mirror is the client-facing projection of a conversation: the transcript
// reduced to what the UI renders, in transcript order.
type Mirror struct {
	ConversationID string        `json:"conversation_id"`
	Title          string        `json:"title"`
	Path           string        `json:"path"`
	Entries        []MirrorEntry `json:"entries"`
}

// Reconcile replaces the entry with the given ID in place, preserving
// position. Returns false if no entry matches. Used to swap an optimistic
// client-side entry for its settled server counterpart.
func (m *Mirror) Reconcile(id string, entry MirrorEntry) bool {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries[i] = entry
			return true
		}
	}
	return false
}
