package agent

import (
	"context"
	"fmt"

	"github.com/NateSpencerWx/melon/config"
	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/llm"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
)

// SystemPrompt establishes the assistant persona and the tool-use policy.
// It tells the model not to ask for permission itself: approval happens
// out-of-band in the safety gate, and a denial comes back as a tool result
// the model should adapt to.
const SystemPrompt = "Your name is Melon, an AI assistant. " +
	"In addition to your native capabilities, you have the ability to run terminal commands on the user's computer if needed to help complete the user's request. " +
	"Commands are automatically reviewed: read-only commands execute immediately, but commands that modify the system (write, delete, install, etc.) will prompt the user for approval before execution. " +
	"Do not worry about asking for permission - the review system handles this automatically. Just focus on fulfilling the user's request using the tool calls available to you. " +
	"If a user denies a command, acknowledge it gracefully and offer alternatives or ask how they'd like to proceed. " +
	"You live in the terminal, inside a command line interface named Melon, where the user interacts with you."

// ErrIterationLimit is returned by ProcessUserInput when the model kept
// requesting tools past the configured bound. The turn ends softly; history
// appended so far is preserved for the next turn.
var ErrIterationLimit = fmt.Errorf("maximum tool iterations reached without a final answer")

// ToolVerbosity controls how much tool traffic the front end echoes.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ProcessCallbacks lets an interaction mode observe the processing loop
// without the core knowing how events are rendered.
type ProcessCallbacks struct {
	// OnAssistantMessage delivers the model's final text for the turn.
	OnAssistantMessage func(message string)
	// OnStatus reports loop progress ("thinking", "running a command").
	OnStatus func(status string)
	// OnToolCall fires before a tool call is dispatched.
	OnToolCall func(toolCall session.ToolCall)
	// OnToolResult fires after a tool call has been answered.
	OnToolResult func(toolCall session.ToolCall, result string)
	// OnWarning reports non-fatal problems (e.g. a failed session save).
	OnWarning func(warning string)
}

// Agent owns the conversation for the duration of one interactive turn and
// drives the model/tool loop.
type Agent struct {
	Config    *config.Config
	Session   *session.Session
	Client    llm.LLMClient
	Tools     *tools.Registry
	Verbosity ToolVerbosity

	// flattenHistory is set once a provider rejects structured tool-call
	// history; from then on every outgoing payload is flattened
	// pre-emptively. The persisted session keeps the structured form.
	flattenHistory bool
}

// New creates an agent. A session with no leading system message gets the
// Melon system prompt prepended.
func New(cfg *config.Config, sess *session.Session, client llm.LLMClient, registry *tools.Registry, verbosity ToolVerbosity) *Agent {
	if len(sess.Messages) == 0 || sess.Messages[0].Role != "system" {
		sess.Messages = append([]session.Message{{Role: "system", Content: SystemPrompt}}, sess.Messages...)
	}
	if verbosity == "" {
		verbosity = ToolVerbosityNone
	}
	return &Agent{
		Config:    cfg,
		Session:   sess,
		Client:    client,
		Tools:     registry,
		Verbosity: verbosity,
	}
}

// ProcessUserInput runs one conversation turn: send history to the model,
// dispatch any requested tool calls, feed the results back, and repeat
// until the model answers in plain text or the iteration bound is hit.
//
// Per-call failures become tool results and never abort the turn. Only
// unrecoverable provider errors propagate, and the history appended so far
// stays intact.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, cb ProcessCallbacks) error {
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	for iteration := 0; iteration < a.maxIterations(); iteration++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emitStatus(cb, "Thinking...")

		resp, err := a.chat(ctx)
		if err != nil {
			return errors.Wrapf(err, "model request failed")
		}

		if len(resp.ToolCalls) == 0 {
			a.Session.AddMessage(session.Message{Role: "assistant", Content: resp.Content})
			if cb.OnAssistantMessage != nil {
				cb.OnAssistantMessage(resp.Content)
			}
			a.saveSession(cb)
			return nil
		}

		// Record the tool-call request verbatim, then answer every call in
		// order, one tool message per request, correlated by id.
		a.Session.AddMessage(*resp)
		for _, tc := range resp.ToolCalls {
			if cb.OnToolCall != nil {
				cb.OnToolCall(tc)
			}
			result := a.dispatchToolCall(ctx, tc)
			if cb.OnToolResult != nil {
				cb.OnToolResult(tc, result)
			}
			a.Session.AddMessage(session.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
		a.saveSession(cb)
		emitStatus(cb, "Thinking about the results...")
	}

	a.saveSession(cb)
	return ErrIterationLimit
}

// chat sends the history to the model, degrading to flattened plain-text
// history when the provider rejects the structured form.
func (a *Agent) chat(ctx context.Context) (*session.Message, error) {
	outgoing := a.Session.Messages
	if a.flattenHistory {
		outgoing = llm.FlattenToolHistory(outgoing)
	}

	resp, err := a.Client.Chat(ctx, outgoing, a.Tools.All())
	if err != nil && errors.Is(err, llm.ErrToolHistoryUnsupported) && !a.flattenHistory {
		a.flattenHistory = true
		resp, err = a.Client.Chat(ctx, llm.FlattenToolHistory(a.Session.Messages), a.Tools.All())
	}
	return resp, err
}

// dispatchToolCall executes one tool call and always produces a result
// string. Failures inside a dispatch are folded into an error payload
// rather than allowed to abort the turn.
func (a *Agent) dispatchToolCall(ctx context.Context, tc session.ToolCall) string {
	tool, ok := a.Tools.Get(tc.Name)
	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool %q", tc.Name))
	}

	result, err := tool.Execute(ctx, tc.Arguments)
	if err != nil {
		return errorPayload(err.Error())
	}
	return result
}

func (a *Agent) maxIterations() int {
	if a.Config != nil && a.Config.MaxIterations > 0 {
		return a.Config.MaxIterations
	}
	return config.DefaultMaxIterations
}

func (a *Agent) saveSession(cb ProcessCallbacks) {
	if err := a.Session.Save(); err != nil && cb.OnWarning != nil {
		cb.OnWarning(fmt.Sprintf("failed to save session: %v", err))
	}
}

func emitStatus(cb ProcessCallbacks, status string) {
	if cb.OnStatus != nil {
		cb.OnStatus(status)
	}
}

// errorPayload shapes an out-of-band failure the way tool results are
// shaped, so the model sees one consistent result format.
func errorPayload(message string) string {
	return tools.ErrorPayload(message)
}
