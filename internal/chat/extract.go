// Package chat runs one chat turn: moderation, intent routing, the vendor
// sub-flows and the streamed reply.
package chat

import (
	"errors"
	"strings"

	"vendor-chat-backend/internal/types"
)

var ErrNoUserText = errors.New("chat: no user message with text")

// LatestUserText returns the text of the most recent user message that has
// any. Non-text parts contribute nothing.
func LatestUserText(msgs []types.ChatMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != types.RoleUser {
			continue
		}
		if text := strings.TrimSpace(msgs[i].Text()); text != "" {
			return text, true
		}
	}
	return "", false
}
