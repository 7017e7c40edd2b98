package chat

// EventType identifies a stream event.
type EventType string

const (
	EventToolStarted  EventType = "tool_started"
	EventToolFinished EventType = "tool_finished"
	EventTokenDelta   EventType = "token_delta"
	EventSettled      EventType = "settled"
)

// StreamEvent is one event on a live exchange stream.
//
// Exactly one Settled event terminates every stream, success or failure; it
// is always the last event delivered.
type StreamEvent struct {
	Type EventType `json:"type"`

	// Tool events
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// Token deltas
	Text string `json:"text,omitempty"`

	// Terminal event
	Settled *Settled `json:"settled,omitempty"`
}

// Settled is the terminal outcome of an exchange. On success it names the
// persisted-to-be assistant turn; on failure only Error is set.
type Settled struct {
	ConversationID string     `json:"conversation_id,omitempty"`
	TurnID         string     `json:"turn_id,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	Content        string     `json:"content,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// NewToolStartedEvent signals that a tool invocation began.
func NewToolStartedEvent(callID, toolName string) StreamEvent {
	return StreamEvent{Type: EventToolStarted, ToolCallID: callID, ToolName: toolName}
}

// NewToolFinishedEvent signals that a tool invocation completed.
func NewToolFinishedEvent(callID, toolName string, isError bool) StreamEvent {
	return StreamEvent{Type: EventToolFinished, ToolCallID: callID, ToolName: toolName, IsError: isError}
}

// NewTokenDeltaEvent carries an incremental chunk of assistant text.
func NewTokenDeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: EventTokenDelta, Text: text}
}

// NewSettledEvent terminates a stream.
func NewSettledEvent(settled Settled) StreamEvent {
	return StreamEvent{Type: EventSettled, Settled: &settled}
}
