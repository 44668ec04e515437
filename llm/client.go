// Package llm abstracts chat-completion providers behind a single
// interface. The agent core depends only on this shape: an ordered message
// list plus tool declarations in, either free text or structured tool-call
// requests out.
package llm

import (
	"context"
	"fmt"

	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
)

// ErrToolHistoryUnsupported is returned by a provider client when the
// request was rejected because the history contained structured tool-call
// messages the provider cannot accept. The agent reacts by flattening the
// tool traffic into plain text and retrying once; it is not a terminal
// failure.
var ErrToolHistoryUnsupported = fmt.Errorf("provider rejected structured tool-call history")

// LLMClient is the interface for interacting with a chat model.
//
// Chat sends the full conversation and the declared tools, and returns the
// assistant's next message: either plain content, or content plus one or
// more structured ToolCalls that the caller must answer before the next
// Chat call.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// MockLLMClient is an offline client used when no provider is configured.
// It parrots the last user message and never requests tools.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock model. You said: %q. Configure a provider to get real answers.", last),
	}, nil
}
