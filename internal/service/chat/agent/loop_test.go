package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"kakehashi/internal/domain"
	"kakehashi/internal/domain/models/chat"
	chatservice "kakehashi/internal/domain/services/chat"
	"kakehashi/internal/service/chat/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider replays a fixed sequence of event slices, one per
// StreamTurn call.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    [][]chatservice.StreamEvent
	requests []*chatservice.Request
}

func (p *scriptedProvider) StreamTurn(ctx context.Context, req *chatservice.Request) (<-chan chatservice.StreamEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.turns) == 0 {
		return nil, errors.New("no scripted turns left")
	}
	events := p.turns[0]
	p.turns = p.turns[1:]

	ch := make(chan chatservice.StreamEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func delta(text string) chatservice.StreamEvent {
	return chatservice.StreamEvent{TextDelta: &text}
}

func toolUse(id, name string, input map[string]interface{}) chatservice.StreamEvent {
	return chatservice.StreamEvent{ToolUse: &chatservice.ToolUse{ID: id, Name: name, Input: input}}
}

func done(c chatservice.Completion) chatservice.StreamEvent {
	return chatservice.StreamEvent{Completion: &c}
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []chat.StreamEvent
}

func (r *recordingEmitter) emit(event chat.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) typed(eventType chat.EventType) []chat.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.StreamEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// echoTool returns its input.
type echoTool struct{}

func (echoTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"echo": input}, nil
}

// brokenTool always fails.
type brokenTool struct{}

func (brokenTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	return nil, errors.New("boom")
}

func newTestRegistry() *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(chat.ToolDefinition{Name: "echo"}, echoTool{})
	registry.Register(chat.ToolDefinition{Name: "broken"}, brokenTool{})
	return registry
}

func userHistory(text string) []chat.Turn {
	return []chat.Turn{chat.NewUserTurn(text)}
}

func TestLoop_Run_PlainAnswer(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{delta("Hel"), delta("lo"), done(chatservice.Completion{Text: "Hello", StopReason: "end_turn"})},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())
	rec := &recordingEmitter{}

	outcome, err := loop.Run(context.Background(), "be helpful", userHistory("hi"), rec.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(outcome.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(outcome.Turns))
	}
	if outcome.Final.Role != chat.RoleAssistant || outcome.Final.Content != "Hello" {
		t.Errorf("unexpected final turn: %+v", outcome.Final)
	}
	if outcome.Final.RunID == nil || *outcome.Final.RunID != outcome.RunID {
		t.Error("final turn should carry the run ID")
	}

	deltas := rec.typed(chat.EventTokenDelta)
	if len(deltas) != 2 || deltas[0].Text != "Hel" || deltas[1].Text != "lo" {
		t.Errorf("unexpected deltas: %v", deltas)
	}

	// Request carries system prompt and tool definitions
	req := provider.requests[0]
	if req.System != "be helpful" {
		t.Errorf("unexpected system prompt: %s", req.System)
	}
	if len(req.Tools) != 2 {
		t.Errorf("expected 2 tool definitions, got %d", len(req.Tools))
	}
}

func TestLoop_Run_ToolRoundTrip(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{
			delta("Let me check."),
			toolUse("call-1", "echo", map[string]interface{}{"query": "bridges"}),
			done(chatservice.Completion{
				Text:       "Let me check.",
				ToolUses:   []chatservice.ToolUse{{ID: "call-1", Name: "echo", Input: map[string]interface{}{"query": "bridges"}}},
				StopReason: "tool_use",
			}),
		},
		{delta("Found it."), done(chatservice.Completion{Text: "Found it.", StopReason: "end_turn"})},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())
	rec := &recordingEmitter{}

	outcome, err := loop.Run(context.Background(), "sys", userHistory("tell me about bridges"), rec.emit)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Tool turn then final assistant turn
	if len(outcome.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(outcome.Turns))
	}
	toolTurn := outcome.Turns[0]
	if toolTurn.Role != chat.RoleTool || len(toolTurn.ToolCalls) != 1 {
		t.Fatalf("unexpected tool turn: %+v", toolTurn)
	}
	if toolTurn.ToolCalls[0].ID != "call-1" || toolTurn.ToolCalls[0].IsError {
		t.Errorf("unexpected tool call record: %+v", toolTurn.ToolCalls[0])
	}
	if outcome.Final.Content != "Found it." {
		t.Errorf("unexpected final content: %s", outcome.Final.Content)
	}
	if len(outcome.Final.ToolCalls) != 1 {
		t.Errorf("final turn should accumulate tool calls, got %d", len(outcome.Final.ToolCalls))
	}

	// Tool lifecycle events emitted
	started := rec.typed(chat.EventToolStarted)
	finished := rec.typed(chat.EventToolFinished)
	if len(started) != 1 || started[0].ToolCallID != "call-1" || started[0].ToolName != "echo" {
		t.Errorf("unexpected tool_started events: %v", started)
	}
	if len(finished) != 1 || finished[0].IsError {
		t.Errorf("unexpected tool_finished events: %v", finished)
	}

	// Second model call sees the tool turn in its message list
	second := provider.requests[1]
	if len(second.Messages) != 3 {
		t.Errorf("expected 3 messages on second call, got %d", len(second.Messages))
	}
}

func TestLoop_Run_SuppressesDeltasAfterToolUse(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{
			delta("before"),
			toolUse("call-1", "echo", nil),
			delta("after"),
			done(chatservice.Completion{
				ToolUses:   []chatservice.ToolUse{{ID: "call-1", Name: "echo"}},
				StopReason: "tool_use",
			}),
		},
		{done(chatservice.Completion{Text: "final", StopReason: "end_turn"})},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())
	rec := &recordingEmitter{}

	if _, err := loop.Run(context.Background(), "sys", userHistory("q"), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	deltas := rec.typed(chat.EventTokenDelta)
	if len(deltas) != 1 || deltas[0].Text != "before" {
		t.Errorf("deltas after tool use must be suppressed, got %v", deltas)
	}
}

func TestLoop_Run_ToolFailureAborts(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{
			toolUse("call-1", "broken", nil),
			done(chatservice.Completion{
				ToolUses:   []chatservice.ToolUse{{ID: "call-1", Name: "broken"}},
				StopReason: "tool_use",
			}),
		},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())
	rec := &recordingEmitter{}

	_, err := loop.Run(context.Background(), "sys", userHistory("q"), rec.emit)
	if err == nil {
		t.Fatal("expected error for failing tool")
	}

	var agentErr *domain.AgentExecutionError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentExecutionError, got %T", err)
	}
	var toolErr *domain.ToolExecutionError
	if !errors.As(err, &toolErr) || toolErr.ToolName != "broken" {
		t.Errorf("expected wrapped ToolExecutionError for 'broken', got %v", err)
	}

	// The failure is still visible on the stream
	finished := rec.typed(chat.EventToolFinished)
	if len(finished) != 1 || !finished[0].IsError {
		t.Errorf("expected a failed tool_finished event, got %v", finished)
	}
}

func TestLoop_Run_ProviderErrorAborts(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{delta("part"), {Err: errors.New("connection lost")}},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())

	_, err := loop.Run(context.Background(), "sys", userHistory("q"), (&recordingEmitter{}).emit)
	if err == nil {
		t.Fatal("expected error")
	}
	var agentErr *domain.AgentExecutionError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentExecutionError, got %T", err)
	}
	if !strings.Contains(err.Error(), "connection lost") {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestLoop_Run_IterationLimit(t *testing.T) {
	// Every iteration requests another tool call and never answers
	turns := make([][]chatservice.StreamEvent, 20)
	for i := range turns {
		turns[i] = []chatservice.StreamEvent{
			toolUse("call", "echo", nil),
			done(chatservice.Completion{
				ToolUses:   []chatservice.ToolUse{{ID: "call", Name: "echo"}},
				StopReason: "tool_use",
			}),
		}
	}
	provider := &scriptedProvider{turns: turns}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())

	_, err := loop.Run(context.Background(), "sys", userHistory("q"), (&recordingEmitter{}).emit)
	if err == nil {
		t.Fatal("expected iteration limit error")
	}
	if len(provider.requests) != loop.maxIterations {
		t.Errorf("expected exactly %d model calls, got %d", loop.maxIterations, len(provider.requests))
	}
}

func TestLoop_Run_DoesNotMutateInputHistory(t *testing.T) {
	provider := &scriptedProvider{turns: [][]chatservice.StreamEvent{
		{
			toolUse("call-1", "echo", nil),
			done(chatservice.Completion{
				ToolUses:   []chatservice.ToolUse{{ID: "call-1", Name: "echo"}},
				StopReason: "tool_use",
			}),
		},
		{done(chatservice.Completion{Text: "ok", StopReason: "end_turn"})},
	}}
	loop := NewLoop(provider, newTestRegistry(), "claude-test", testLogger())

	history := userHistory("q")
	if _, err := loop.Run(context.Background(), "sys", history, (&recordingEmitter{}).emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("input history mutated: %d turns", len(history))
	}
}
