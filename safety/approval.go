package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/bmatcuk/doublestar/v4"
)

// Gate runs the approval protocol for shell commands:
//
//  1. Commands matching an always-allow pattern proceed untouched.
//  2. Otherwise the command is classified; read-only commands proceed
//     without any operator interaction.
//  3. Modifying commands enter the accept/deny/edit negotiation. An edited
//     command is re-classified from scratch and never auto-approved; a
//     denial is turned into a feedback message for the model, not an error.
//
// Gate implements tools.CommandApprover.
type Gate struct {
	classifier  CommandClassifier
	prompter    Prompter
	alwaysAllow []string
}

func NewGate(classifier CommandClassifier, prompter Prompter, alwaysAllow []string) *Gate {
	return &Gate{
		classifier:  classifier,
		prompter:    prompter,
		alwaysAllow: alwaysAllow,
	}
}

// ApproveCommand drives one approval negotiation. It blocks on operator
// input for modifying commands. Only prompter I/O failures return an error;
// denials come back as a non-proceed Approval.
func (g *Gate) ApproveCommand(ctx context.Context, command string) (tools.Approval, error) {
	if g.preApproved(command) {
		return tools.Approval{Proceed: true, Command: command}, nil
	}

	verdict := g.classifier.Classify(ctx, command)
	edited := false

	for {
		if ctx.Err() != nil {
			return tools.Approval{}, ctx.Err()
		}
		if !verdict.Modifies {
			return tools.Approval{Proceed: true, Command: command}, nil
		}

		g.prompter.ShowCommand(command, verdict.Description, edited)

	actions:
		for {
			raw, err := g.prompter.ReadAction()
			if err != nil {
				return tools.Approval{}, errors.Wrapf(err, "failed to read approval action")
			}

			switch strings.ToLower(strings.TrimSpace(raw)) {
			case "a", "accept":
				return tools.Approval{Proceed: true, Command: command}, nil

			case "d", "deny":
				return g.deny()

			case "e", "edit":
				newCommand, err := g.prompter.ReadEditedCommand()
				if err != nil {
					return tools.Approval{}, errors.Wrapf(err, "failed to read edited command")
				}
				if newCommand == "" {
					// An abandoned edit is a denial.
					return g.deny()
				}
				// The edited text must pass classification again; editing
				// cannot bypass the gate.
				command = newCommand
				verdict = g.classifier.Classify(ctx, command)
				edited = true
				break actions

			default:
				g.prompter.ShowInvalidAction()
				// Re-prompt; no state change.
			}
		}
	}
}

// deny collects the optional reason and shapes the rejection message that
// round-trips to the model as the tool result.
func (g *Gate) deny() (tools.Approval, error) {
	reason, err := g.prompter.ReadDenyReason()
	if err != nil {
		return tools.Approval{}, errors.Wrapf(err, "failed to read denial reason")
	}
	message := "Command denied by user. Please try a different approach."
	if reason != "" {
		message = fmt.Sprintf("Command denied by user. Reason: %s. Please try a different approach based on this feedback.", reason)
	}
	return tools.Approval{Rejection: message}, nil
}

// preApproved checks the command against the configured always-allow glob
// patterns. A match skips both classification and the operator prompt, so
// these patterns are a deliberate trust declaration in config.
func (g *Gate) preApproved(command string) bool {
	for _, pattern := range g.alwaysAllow {
		ok, err := doublestar.Match(pattern, command)
		if err != nil {
			// An invalid pattern never grants approval.
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
