package chat

import (
	"context"

	chatmodel "kakehashi/internal/domain/models/chat"
)

// ToolUse is a tool invocation requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResult is the outcome of a tool invocation, fed back to the model.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// Message is one model-facing conversation message.
// An assistant message may carry tool uses; a user message may carry tool
// results. Text and tool blocks can coexist.
type Message struct {
	Role        string
	Text        string
	ToolUses    []ToolUse
	ToolResults []ToolResult
}

// Completion is the terminal result of one streamed model turn.
type Completion struct {
	Text         string
	ToolUses     []ToolUse
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// StreamEvent is one event from a streaming model turn. Exactly one of the
// fields is set. A Completion or Err event is always last.
type StreamEvent struct {
	TextDelta  *string
	ToolUse    *ToolUse
	Completion *Completion
	Err        error
}

// Request describes one model turn.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []chatmodel.ToolDefinition
	MaxTokens   int
	Temperature *float64
}

// ModelProvider streams one model turn. The returned channel is closed after
// the terminal event.
type ModelProvider interface {
	StreamTurn(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}
