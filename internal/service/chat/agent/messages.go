package agent

import (
	"encoding/json"
	"fmt"

	"kakehashi/internal/domain/models/chat"
	chatservice "kakehashi/internal/domain/services/chat"
)

// BuildMessages converts a conversation transcript into model-facing messages.
//
// A tool turn expands into two messages: the assistant message requesting the
// tool uses, and the user message carrying their results. System turns are
// carried via the request's system prompt, not the message list, so they are
// skipped here.
func BuildMessages(history []chat.Turn) ([]chatservice.Message, error) {
	messages := make([]chatservice.Message, 0, len(history))

	for i, turn := range history {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, chatservice.Message{
				Role: "user",
				Text: turn.Content,
			})

		case chat.RoleAssistant:
			messages = append(messages, chatservice.Message{
				Role: "assistant",
				Text: turn.Content,
			})

		case chat.RoleTool:
			uses := make([]chatservice.ToolUse, len(turn.ToolCalls))
			results := make([]chatservice.ToolResult, len(turn.ToolCalls))
			for j, call := range turn.ToolCalls {
				uses[j] = chatservice.ToolUse{
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Input,
				}
				results[j] = chatservice.ToolResult{
					ToolUseID: call.ID,
					Content:   serializeResult(call.Result),
					IsError:   call.IsError,
				}
			}
			messages = append(messages,
				chatservice.Message{Role: "assistant", ToolUses: uses},
				chatservice.Message{Role: "user", ToolResults: results},
			)

		case chat.RoleSystem:
			continue

		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}

	return messages, nil
}

// serializeResult renders a tool result for the model. Strings pass through;
// everything else is JSON-encoded.
func serializeResult(result interface{}) string {
	if result == nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
