// Package tools defines the actions the agent can take on the model's
// behalf. The model-facing surface is deliberately a single tool,
// run_terminal_command; everything risky funnels through one approval
// pipeline instead of a per-tool permission matrix.
package tools

import (
	"context"
)

// Tool defines the interface for any action the agent can execute for the
// model. Arguments arrive as the raw JSON string the model produced;
// parsing happens inside Execute so a malformed payload surfaces as a tool
// error, not a crash.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema for the tool's arguments, in the
	// shape chat-completion APIs expect for function declarations.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, rawArgs string) (string, error)
}

// Approval is the outcome of the approval pipeline for one command.
// Exactly one of Proceed or Rejection is meaningful: when Proceed is true,
// Command carries the final (possibly operator-edited) command text; when
// false, Rejection carries the message that goes back to the model as the
// tool result.
type Approval struct {
	Proceed   bool
	Command   string
	Rejection string
}

// CommandApprover decides whether a shell command may run. Implemented by
// the safety package's classifier-backed gate; tests substitute their own.
type CommandApprover interface {
	ApproveCommand(ctx context.Context, command string) (Approval, error)
}

// Registry holds all registered tools by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns the registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
