package agent

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/NateSpencerWx/melon/config"
	"github.com/NateSpencerWx/melon/llm"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// chatStep is one scripted model response: either a message or an error.
type chatStep struct {
	msg *session.Message
	err error
}

// scriptedClient replays a fixed sequence of responses and records every
// outgoing payload.
type scriptedClient struct {
	steps []chatStep
	sent  [][]session.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	// Copy: the agent may hand us a flattened view of live history.
	snapshot := make([]session.Message, len(messages))
	copy(snapshot, messages)
	c.sent = append(c.sent, snapshot)

	if len(c.steps) == 0 {
		return nil, fmt.Errorf("scripted client ran out of responses")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.msg, step.err
}

// stubTool records its invocations and returns a canned result.
type stubTool struct {
	name   string
	result string
	err    error
	calls  []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (s *stubTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	s.calls = append(s.calls, rawArgs)
	return s.result, s.err
}

func newTestAgent(t *testing.T, client llm.LLMClient, tool tools.Tool, maxIterations int) *Agent {
	t.Helper()
	chdir(t, t.TempDir())

	sess, err := session.New("test-session")
	require.NoError(t, err)

	registry := tools.NewRegistry()
	if tool != nil {
		registry.Register(tool)
	}

	cfg := &config.Config{MaxIterations: maxIterations}
	return New(cfg, sess, client, registry, ToolVerbosityNone)
}

func toolCallResponse(calls ...session.ToolCall) chatStep {
	return chatStep{msg: &session.Message{Role: "assistant", ToolCalls: calls}}
}

func textResponse(content string) chatStep {
	return chatStep{msg: &session.Message{Role: "assistant", Content: content}}
}

func TestProcessPlainAnswer(t *testing.T) {
	client := &scriptedClient{steps: []chatStep{textResponse("hello there")}}
	a := newTestAgent(t, client, nil, 10)

	var got string
	err := a.ProcessUserInput(context.Background(), "hi", ProcessCallbacks{
		OnAssistantMessage: func(m string) { got = m },
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	msgs := a.Session.Messages
	require.Len(t, msgs, 3) // system, user, assistant
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "hello there", msgs[2].Content)
}

func TestProcessDispatchesToolBatchInOrder(t *testing.T) {
	tool := &stubTool{name: "run_terminal_command", result: `{"output": "ok", "returncode": 0}`}
	client := &scriptedClient{steps: []chatStep{
		toolCallResponse(
			session.ToolCall{ID: "call_1", Name: "run_terminal_command", Arguments: `{"command": "pwd"}`},
			session.ToolCall{ID: "call_2", Name: "run_terminal_command", Arguments: `{"command": "ls"}`},
			session.ToolCall{ID: "call_3", Name: "run_terminal_command", Arguments: `{"command": "date"}`},
		),
		textResponse("all done"),
	}}
	a := newTestAgent(t, client, tool, 10)

	err := a.ProcessUserInput(context.Background(), "poke around", ProcessCallbacks{})
	require.NoError(t, err)

	// All three calls dispatched, in the order received.
	assert.Equal(t, []string{`{"command": "pwd"}`, `{"command": "ls"}`, `{"command": "date"}`}, tool.calls)

	// Exactly one tool message per request, correlated by id, same order,
	// all appended before the next model round trip.
	msgs := a.Session.Messages
	require.Len(t, msgs, 7) // system, user, assistant+calls, 3 tool results, assistant
	assert.Equal(t, 3, len(msgs[2].ToolCalls))
	for i, wantID := range []string{"call_1", "call_2", "call_3"} {
		toolMsg := msgs[3+i]
		assert.Equal(t, "tool", toolMsg.Role)
		assert.Equal(t, wantID, toolMsg.ToolCallID)
	}

	// The second request carried the tool results.
	require.Len(t, client.sent, 2)
	assert.Len(t, client.sent[1], 6)
}

func TestProcessIterationLimit(t *testing.T) {
	tool := &stubTool{name: "run_terminal_command", result: `{"output": "", "returncode": 0}`}

	// A model that always wants another command.
	var steps []chatStep
	for i := 0; i < 20; i++ {
		steps = append(steps, toolCallResponse(session.ToolCall{
			ID: fmt.Sprintf("call_%d", i), Name: "run_terminal_command", Arguments: `{"command": "ls"}`,
		}))
	}
	client := &scriptedClient{steps: steps}
	a := newTestAgent(t, client, tool, 4)

	err := a.ProcessUserInput(context.Background(), "loop forever", ProcessCallbacks{})

	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Len(t, client.sent, 4, "the loop must stop at the configured bound")
	// History up to the bound is preserved.
	assert.Greater(t, len(a.Session.Messages), 4)
}

func TestProcessUnknownToolBecomesErrorResult(t *testing.T) {
	client := &scriptedClient{steps: []chatStep{
		toolCallResponse(session.ToolCall{ID: "call_1", Name: "format_disk", Arguments: `{}`}),
		textResponse("understood"),
	}}
	a := newTestAgent(t, client, nil, 10)

	err := a.ProcessUserInput(context.Background(), "do something", ProcessCallbacks{})
	require.NoError(t, err)

	toolMsg := a.Session.Messages[3]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "unknown tool")
}

func TestProcessToolFailureDoesNotAbortTurn(t *testing.T) {
	tool := &stubTool{name: "run_terminal_command", err: fmt.Errorf("invalid arguments for run_terminal_command")}
	client := &scriptedClient{steps: []chatStep{
		toolCallResponse(session.ToolCall{ID: "call_1", Name: "run_terminal_command", Arguments: `not json`}),
		textResponse("sorry about that"),
	}}
	a := newTestAgent(t, client, tool, 10)

	err := a.ProcessUserInput(context.Background(), "run it", ProcessCallbacks{})

	require.NoError(t, err)
	assert.Contains(t, a.Session.Messages[3].Content, "invalid arguments")
}

func TestProcessProviderErrorPreservesHistory(t *testing.T) {
	client := &scriptedClient{steps: []chatStep{{err: fmt.Errorf("boom")}}}
	a := newTestAgent(t, client, nil, 10)

	err := a.ProcessUserInput(context.Background(), "hello", ProcessCallbacks{})

	assert.Error(t, err)
	// The user message stays; the next turn continues from here.
	require.Len(t, a.Session.Messages, 2)
	assert.Equal(t, "hello", a.Session.Messages[1].Content)
}

func TestProcessFlattensHistoryAfterProviderRejection(t *testing.T) {
	client := &scriptedClient{steps: []chatStep{
		{err: fmt.Errorf("bad request: %w", llm.ErrToolHistoryUnsupported)},
		textResponse("recovered"),
		textResponse("still fine"),
	}}
	a := newTestAgent(t, client, nil, 10)

	// Seed structured tool traffic from an earlier turn.
	a.Session.AddMessage(session.Message{
		Role:      "assistant",
		ToolCalls: []session.ToolCall{{ID: "call_0", Name: "run_terminal_command", Arguments: `{"command": "ls"}`}},
	})
	a.Session.AddMessage(session.Message{Role: "tool", Content: `{"output": "", "returncode": 0}`, ToolCallID: "call_0"})

	err := a.ProcessUserInput(context.Background(), "continue", ProcessCallbacks{})
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	// The first payload still carried structured history.
	assert.True(t, hasToolShapes(client.sent[0]))
	// The retry was flattened.
	assert.False(t, hasToolShapes(client.sent[1]))

	// The canonical history keeps the structured form.
	assert.True(t, hasToolShapes(a.Session.Messages))

	// Once detected, later requests flatten pre-emptively.
	err = a.ProcessUserInput(context.Background(), "one more", ProcessCallbacks{})
	require.NoError(t, err)
	require.Len(t, client.sent, 3)
	assert.False(t, hasToolShapes(client.sent[2]))
}

func hasToolShapes(messages []session.Message) bool {
	for _, m := range messages {
		if m.Role == "tool" || len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

func TestNewPrependsSystemPrompt(t *testing.T) {
	chdir(t, t.TempDir())
	sess, err := session.New("fresh")
	require.NoError(t, err)

	a := New(&config.Config{}, sess, &scriptedClient{}, tools.NewRegistry(), "")

	require.NotEmpty(t, a.Session.Messages)
	assert.Equal(t, "system", a.Session.Messages[0].Role)
	assert.Contains(t, a.Session.Messages[0].Content, "Melon")
	assert.Equal(t, ToolVerbosityNone, a.Verbosity)
}
