package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall records a single tool invocation and its outcome.
// The LLM assigns the ID; Result is populated after execution.
type ToolCall struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Input   map[string]interface{} `json:"input"`
	Result  interface{}            `json:"result,omitempty"`
	IsError bool                   `json:"is_error,omitempty"`
}

// Turn is one entry in a conversation transcript.
//
// Assistant turns carry a RunID (trace identifier) and the tool calls
// accumulated across the reasoning loop. Tool turns record the calls of a
// single loop iteration together with their results. FeedbackID is attached
// after the fact when a user rates the response.
type Turn struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	RunID      *string    `json:"run_id,omitempty"`
	FeedbackID *string    `json:"feedback_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewUserTurn creates a completed user turn from a message.
func NewUserTurn(content string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewToolTurn records the tool calls of one reasoning iteration.
// Name is the name of the first tool, matching how the transcript is rendered.
func NewToolTurn(calls []ToolCall) Turn {
	name := ""
	if len(calls) > 0 {
		name = calls[0].Name
	}
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleTool,
		Name:      name,
		ToolCalls: calls,
		CreatedAt: time.Now(),
	}
}

// NewAssistantTurn creates the final assistant turn of an exchange.
func NewAssistantTurn(content, runID string, calls []ToolCall) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		RunID:     &runID,
		ToolCalls: calls,
		CreatedAt: time.Now(),
	}
}
