package llm

import (
	"fmt"
	"strings"

	"github.com/NateSpencerWx/melon/session"
)

// FlattenToolHistory rewrites structured tool traffic into role-appropriate
// plain text for providers that reject tool-shaped history:
//
//   - an assistant message carrying tool calls becomes an assistant text
//     message narrating the invocations;
//   - a tool result message becomes a user text message prefixed
//     "Tool result:".
//
// The transform is lossy and one-way. It is applied only to the outgoing
// request payload; the canonical session history keeps the structured form.
func FlattenToolHistory(messages []session.Message) []session.Message {
	out := make([]session.Message, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			var b strings.Builder
			if msg.Content != "" {
				b.WriteString(msg.Content)
				b.WriteString("\n")
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&b, "You invoked tool %s with arguments %s\n", tc.Name, tc.Arguments)
			}
			out = append(out, session.Message{
				Role:    "assistant",
				Content: strings.TrimRight(b.String(), "\n"),
			})

		case msg.Role == "tool":
			out = append(out, session.Message{
				Role:    "user",
				Content: "Tool result: " + msg.Content,
			})

		default:
			out = append(out, msg)
		}
	}
	return out
}
