// Package agent runs the reasoning loop: the model is called with the
// conversation so far, requested tools are executed, and their results are
// fed back until the model produces a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"kakehashi/internal/config"
	"kakehashi/internal/domain"
	"kakehashi/internal/domain/models/chat"
	chatservice "kakehashi/internal/domain/services/chat"
	"kakehashi/internal/service/chat/tools"
)

// Emitter receives live events as the loop progresses.
type Emitter func(chat.StreamEvent)

// Outcome is the result of a successful loop run.
type Outcome struct {
	RunID string
	// Turns produced by the run: zero or more tool turns, then the final
	// assistant turn.
	Turns []chat.Turn
	// Final is the assistant turn, identical to the last element of Turns.
	Final chat.Turn
}

// Loop drives the model/tool reasoning cycle for one exchange.
type Loop struct {
	provider      chatservice.ModelProvider
	registry      *tools.Registry
	model         string
	maxIterations int
	maxTokens     int
	logger        *slog.Logger
}

// NewLoop creates a new reasoning loop.
func NewLoop(provider chatservice.ModelProvider, registry *tools.Registry, model string, logger *slog.Logger) *Loop {
	return &Loop{
		provider:      provider,
		registry:      registry,
		model:         model,
		maxIterations: config.MaxAgentIterations,
		maxTokens:     4096,
		logger:        logger,
	}
}

// Run executes the reasoning loop over the given transcript (which already
// ends with the new user turn). Failures are reported as
// *domain.AgentExecutionError carrying the run ID.
//
// Event semantics:
//   - Token deltas are forwarded live until the first tool use of an
//     iteration arrives; text in a tool-requesting iteration is preamble and
//     is suppressed and discarded.
//   - Each tool call produces a tool_started and a tool_finished event.
//   - The terminal settled event is the caller's responsibility.
func (l *Loop) Run(ctx context.Context, system string, history []chat.Turn, emit Emitter) (*Outcome, error) {
	runID := uuid.New().String()

	working := make([]chat.Turn, len(history))
	copy(working, history)

	outcome := &Outcome{RunID: runID}

	// Tool calls accumulated across all iterations, recorded on the final
	// assistant turn.
	var allCalls []chat.ToolCall

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		completion, err := l.streamIteration(ctx, system, working, emit)
		if err != nil {
			return nil, &domain.AgentExecutionError{RunID: runID, Cause: err}
		}

		// Pending tool calls are authoritative: any text produced alongside
		// them is reasoning preamble, not the answer.
		if len(completion.ToolUses) == 0 {
			final := chat.NewAssistantTurn(completion.Text, runID, allCalls)
			outcome.Turns = append(outcome.Turns, final)
			outcome.Final = final

			l.logger.Debug("agent run complete",
				"run_id", runID,
				"iterations", iteration+1,
				"tool_calls", len(allCalls),
				"input_tokens", completion.InputTokens,
				"output_tokens", completion.OutputTokens,
			)
			return outcome, nil
		}

		toolTurn, err := l.executeTools(ctx, completion.ToolUses, emit)
		if err != nil {
			return nil, &domain.AgentExecutionError{RunID: runID, Cause: err}
		}

		allCalls = append(allCalls, toolTurn.ToolCalls...)
		working = append(working, toolTurn)
		outcome.Turns = append(outcome.Turns, toolTurn)
	}

	return nil, &domain.AgentExecutionError{
		RunID: runID,
		Cause: fmt.Errorf("no final answer after %d iterations", l.maxIterations),
	}
}

// streamIteration runs one model turn and returns its completion.
func (l *Loop) streamIteration(ctx context.Context, system string, working []chat.Turn, emit Emitter) (*chatservice.Completion, error) {
	messages, err := BuildMessages(working)
	if err != nil {
		return nil, err
	}

	req := &chatservice.Request{
		Model:     l.model,
		System:    system,
		Messages:  messages,
		Tools:     l.registry.Definitions(),
		MaxTokens: l.maxTokens,
	}

	events, err := l.provider.StreamTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	var completion *chatservice.Completion
	toolSeen := false

	for event := range events {
		switch {
		case event.Err != nil:
			return nil, event.Err

		case event.TextDelta != nil:
			if !toolSeen {
				emit(chat.NewTokenDeltaEvent(*event.TextDelta))
			}

		case event.ToolUse != nil:
			// From here on this iteration's text will be discarded
			toolSeen = true

		case event.Completion != nil:
			completion = event.Completion
		}
	}

	if completion == nil {
		return nil, errors.New("model stream ended without completion")
	}
	return completion, nil
}

// executeTools runs the requested tools in parallel and records them as a
// tool turn. Any tool failure aborts the run.
func (l *Loop) executeTools(ctx context.Context, uses []chatservice.ToolUse, emit Emitter) (chat.Turn, error) {
	calls := make([]tools.Call, len(uses))
	for i, use := range uses {
		calls[i] = tools.Call{ID: use.ID, Name: use.Name, Input: use.Input}
		emit(chat.NewToolStartedEvent(use.ID, use.Name))
	}

	results := l.registry.ExecuteParallel(ctx, calls)

	recorded := make([]chat.ToolCall, len(results))
	var failure error

	for i, result := range results {
		emit(chat.NewToolFinishedEvent(result.ID, result.Name, result.IsError))

		recorded[i] = chat.ToolCall{
			ID:      result.ID,
			Name:    result.Name,
			Input:   calls[i].Input,
			Result:  result.Result,
			IsError: result.IsError,
		}
		if result.IsError {
			recorded[i].Result = result.Error.Error()
			if failure == nil {
				failure = &domain.ToolExecutionError{ToolName: result.Name, Cause: result.Error}
			}
		}
	}

	if failure != nil {
		return chat.Turn{}, failure
	}

	return chat.NewToolTurn(recorded), nil
}
