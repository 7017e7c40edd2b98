// Package materializer projects conversation transcripts into client-facing
// mirrors.
package materializer

import (
	"fmt"

	"kakehashi/internal/domain/models/chat"
)

// Materialize builds the client mirror of a conversation. System turns carry
// no renderable content and are skipped; everything else maps one-to-one onto
// a mirror entry, preserving transcript order.
func Materialize(conv *chat.Conversation) (*chat.Mirror, error) {
	mirror := &chat.Mirror{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Path:           conv.Path,
		Entries:        []chat.MirrorEntry{},
	}

	for i, turn := range conv.Turns {
		switch turn.Role {
		case chat.RoleSystem:
			continue

		case chat.RoleUser:
			mirror.Entries = append(mirror.Entries, chat.MirrorEntry{
				ID:   turn.ID,
				Kind: chat.EntryUser,
				Text: turn.Content,
			})

		case chat.RoleAssistant:
			mirror.Entries = append(mirror.Entries, chat.MirrorEntry{
				ID:         turn.ID,
				Kind:       chat.EntryAssistant,
				Text:       turn.Content,
				RunID:      turn.RunID,
				FeedbackID: turn.FeedbackID,
				ToolCalls:  turn.ToolCalls,
			})

		case chat.RoleTool:
			mirror.Entries = append(mirror.Entries, chat.MirrorEntry{
				ID:        turn.ID,
				Kind:      chat.EntryToolActivity,
				Text:      turn.Name,
				ToolCalls: turn.ToolCalls,
			})

		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}

	return mirror, nil
}
