package agent

import (
	"testing"

	"kakehashi/internal/domain/models/chat"
)

func TestBuildMessages(t *testing.T) {
	runID := "run-1"
	history := []chat.Turn{
		{Role: chat.RoleSystem, Content: "ignored"},
		{Role: chat.RoleUser, Content: "What does 'kakehashi' mean?"},
		{
			Role: chat.RoleTool,
			ToolCalls: []chat.ToolCall{
				{
					ID:     "call-1",
					Name:   "wikipedia",
					Input:  map[string]interface{}{"query": "kakehashi"},
					Result: map[string]interface{}{"results": []interface{}{}},
				},
			},
		},
		{Role: chat.RoleAssistant, Content: "It means 'bridge'.", RunID: &runID},
	}

	messages, err := BuildMessages(history)
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}

	// system skipped; tool turn expands to two messages
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}

	if messages[0].Role != "user" || messages[0].Text != "What does 'kakehashi' mean?" {
		t.Errorf("unexpected first message: %+v", messages[0])
	}

	if messages[1].Role != "assistant" || len(messages[1].ToolUses) != 1 {
		t.Fatalf("expected assistant tool-use message, got %+v", messages[1])
	}
	if messages[1].ToolUses[0].ID != "call-1" || messages[1].ToolUses[0].Name != "wikipedia" {
		t.Errorf("unexpected tool use: %+v", messages[1].ToolUses[0])
	}

	if messages[2].Role != "user" || len(messages[2].ToolResults) != 1 {
		t.Fatalf("expected user tool-result message, got %+v", messages[2])
	}
	if messages[2].ToolResults[0].ToolUseID != "call-1" {
		t.Errorf("unexpected tool result: %+v", messages[2].ToolResults[0])
	}
	if messages[2].ToolResults[0].Content != `{"results":[]}` {
		t.Errorf("unexpected serialized result: %s", messages[2].ToolResults[0].Content)
	}

	if messages[3].Role != "assistant" || messages[3].Text != "It means 'bridge'." {
		t.Errorf("unexpected final message: %+v", messages[3])
	}
}

func TestBuildMessages_ErrorResultsPropagateFlag(t *testing.T) {
	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{
			Role: chat.RoleTool,
			ToolCalls: []chat.ToolCall{
				{ID: "call-1", Name: "wikipedia", Result: "upstream timeout", IsError: true},
			},
		},
	}

	messages, err := BuildMessages(history)
	if err != nil {
		t.Fatalf("BuildMessages failed: %v", err)
	}

	result := messages[2].ToolResults[0]
	if !result.IsError {
		t.Error("expected IsError to carry through")
	}
	if result.Content != "upstream timeout" {
		t.Errorf("string results should pass through unquoted, got %s", result.Content)
	}
}

func TestBuildMessages_UnknownRole(t *testing.T) {
	history := []chat.Turn{{Role: chat.Role("moderator"), Content: "?"}}

	if _, err := BuildMessages(history); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestSerializeResult(t *testing.T) {
	if got := serializeResult(nil); got != "" {
		t.Errorf("nil result: got %q", got)
	}
	if got := serializeResult("plain"); got != "plain" {
		t.Errorf("string result: got %q", got)
	}
	if got := serializeResult(map[string]interface{}{"k": 1}); got != `{"k":1}` {
		t.Errorf("map result: got %q", got)
	}
}
