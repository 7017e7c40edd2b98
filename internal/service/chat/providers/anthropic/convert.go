package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	chatmodel "kakehashi/internal/domain/models/chat"
	chatservice "kakehashi/internal/domain/services/chat"
)

// convertMessages converts domain messages to the Anthropic wire format.
func convertMessages(messages []chatservice.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "user":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolResults))
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: tr.ToolUseID,
						IsError:   anthropic.Bool(tr.IsError),
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: tr.Content}},
						},
					},
				})
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: empty user message", i)
			}
			result = append(result, anthropic.NewUserMessage(blocks...))

		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolUses))
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, tu := range msg.ToolUses {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tu.ID,
						Name:  tu.Name,
						Input: tu.Input,
					},
				})
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: empty assistant message", i)
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}

	return result, nil
}

// convertTools converts domain tool definitions to Anthropic tool params.
// The definition's Parameters field holds a JSON Schema object with
// "properties" and "required" keys.
func convertTools(defs []chatmodel.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{}

		if props, ok := def.Parameters["properties"].(map[string]interface{}); ok {
			schema.Properties = props
		}
		switch req := def.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []interface{}:
			for _, v := range req {
				if s, ok := v.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: schema,
			},
		})
	}

	return tools
}

// toolUseFromBlock extracts a domain ToolUse from an accumulated content block.
// Returns false if the block is not a tool_use block.
func toolUseFromBlock(block anthropic.ContentBlockUnion) (chatservice.ToolUse, bool) {
	tub, ok := block.AsAny().(anthropic.ToolUseBlock)
	if !ok {
		return chatservice.ToolUse{}, false
	}

	input := map[string]interface{}{}
	if len(tub.Input) > 0 {
		// Malformed input JSON from the model falls back to an empty map;
		// the tool rejects missing parameters with a clear error.
		_ = json.Unmarshal(tub.Input, &input)
	}

	return chatservice.ToolUse{
		ID:    tub.ID,
		Name:  tub.Name,
		Input: input,
	}, true
}

// completionFromMessage builds the terminal Completion from the accumulated
// message.
func completionFromMessage(message *anthropic.Message) *chatservice.Completion {
	completion := &chatservice.Completion{
		StopReason:   string(message.StopReason),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}

	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			completion.Text += b.Text
		case anthropic.ToolUseBlock:
			input := map[string]interface{}{}
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &input)
			}
			completion.ToolUses = append(completion.ToolUses, chatservice.ToolUse{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}

	return completion
}
