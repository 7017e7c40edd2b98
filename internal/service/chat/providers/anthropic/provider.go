// Package anthropic adapts the Anthropic Messages API to the domain's
// ModelProvider interface.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	chatservice "kakehashi/internal/domain/services/chat"
)

// Provider implements the ModelProvider interface for Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// StreamTurn streams one model turn. Text deltas are emitted as they arrive;
// each requested tool use is emitted once its input block is complete. The
// terminal event is either a Completion or an Err, after which the channel
// closes.
func (p *Provider) StreamTurn(ctx context.Context, req *chatservice.Request) (<-chan chatservice.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	if req.Temperature != nil {
		apiParams.Temperature = anthropic.Float(*req.Temperature)
	}

	if req.System != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	if len(req.Tools) > 0 {
		apiParams.Tools = convertTools(req.Tools)
	}

	eventChan := make(chan chatservice.StreamEvent, 10) // Buffered to prevent blocking

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for the final message
		message := anthropic.Message{}

		// Block type per index, needed to recognize tool_use blocks at stop
		blockTypes := map[int64]string{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- chatservice.StreamEvent{
					Err: fmt.Errorf("failed to accumulate message: %w", err),
				}
				return
			}

			var out *chatservice.StreamEvent

			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				blockTypes[e.Index] = string(e.ContentBlock.Type)

			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type == "text_delta" {
					text := e.Delta.Text
					out = &chatservice.StreamEvent{TextDelta: &text}
				}

			case anthropic.ContentBlockStopEvent:
				// The accumulated block now holds the full tool input
				if blockTypes[e.Index] == "tool_use" && int(e.Index) < len(message.Content) {
					if tu, ok := toolUseFromBlock(message.Content[e.Index]); ok {
						out = &chatservice.StreamEvent{ToolUse: &tu}
					}
				}
			}

			if out == nil {
				continue
			}

			select {
			case <-ctx.Done():
				eventChan <- chatservice.StreamEvent{Err: ctx.Err()}
				return
			case eventChan <- *out:
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- chatservice.StreamEvent{
				Err: fmt.Errorf("anthropic streaming error: %w", err),
			}
			return
		}

		eventChan <- chatservice.StreamEvent{
			Completion: completionFromMessage(&message),
		}
	}()

	return eventChan, nil
}
