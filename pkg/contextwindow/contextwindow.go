// Package contextwindow bounds the history sent to the completion provider.
package contextwindow

import "github.com/papercomputeco/recall/pkg/llm"

// DefaultMaxMessages is the number of non-system messages kept by default.
const DefaultMaxMessages = 20

// Trim keeps every system message and the last maxMessages non-system
// messages, preserving their relative order. Sequences already within the
// window are returned unchanged. maxMessages <= 0 keeps only system messages.
func Trim(messages []llm.Message, maxMessages int) []llm.Message {
	if maxMessages > 0 && len(messages) <= maxMessages {
		return messages
	}

	nonSystem := 0
	for i := range messages {
		if messages[i].Role != llm.RoleSystem {
			nonSystem++
		}
	}
	skip := nonSystem - max(maxMessages, 0)

	out := make([]llm.Message, 0, len(messages)-max(skip, 0))
	for _, m := range messages {
		if m.Role != llm.RoleSystem && skip > 0 {
			skip--
			continue
		}
		out = append(out, m)
	}
	return out
}
