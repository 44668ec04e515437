// Package safety implements the command-safety approval protocol: an
// LLM-backed classifier that judges whether a shell command modifies the
// system, and an interactive gate that negotiates accept/deny/edit with the
// operator before a modifying command may execute.
package safety

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NateSpencerWx/melon/llm"
	"github.com/NateSpencerWx/melon/session"
)

const classifierSystemPrompt = "You are a command safety analyzer. Your job is to determine if a shell command will modify the system (write, delete, install, update, etc.) or just read information.\n" +
	"Respond with a JSON object in this exact format:\n" +
	"{\n" +
	"  \"modifies\": true/false,\n" +
	"  \"description\": \"Brief description of what the command does\"\n" +
	"}\n" +
	"Commands that MODIFY include: write operations, file creation/deletion, installations, updates, permission changes, network operations that send data, etc.\n" +
	"Commands that are READ-ONLY include: listing files, reading file contents, checking status, viewing information, etc.\n" +
	"Analyze carefully: a command that looks read-only but has side effects must be reported as modifying."

// Verdict is the classifier's judgment of one command string. Verdicts are
// produced fresh for every distinct command, including edited
// resubmissions; they are never cached.
type Verdict struct {
	Modifies    bool
	Description string
}

// CommandClassifier judges whether a command mutates system state.
type CommandClassifier interface {
	Classify(ctx context.Context, command string) Verdict
}

// Classifier asks a designated model for a verdict. Any failure, whether
// transport or parsing, yields Modifies=true: classification must never
// silently permit an unverified command.
type Classifier struct {
	client llm.LLMClient
}

// NewClassifier creates a classifier backed by the given client. The client
// should be constructed with the classifier model, which may differ from
// the conversational one.
func NewClassifier(client llm.LLMClient) *Classifier {
	return &Classifier{client: client}
}

// Classify returns the verdict for a command. It does not return an error:
// failures are folded into a fail-closed verdict.
func (c *Classifier) Classify(ctx context.Context, command string) Verdict {
	messages := []session.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: "Analyze this command: " + command},
	}

	resp, err := c.client.Chat(ctx, messages, nil)
	if err != nil {
		return failClosed(err)
	}

	var parsed struct {
		Modifies    *bool  `json:"modifies"`
		Description string `json:"description"`
	}
	raw := StripCodeFence(resp.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return failClosed(err)
	}
	if parsed.Modifies == nil {
		return failClosed(fmt.Errorf("classifier response missing 'modifies' key"))
	}

	description := parsed.Description
	if description == "" {
		description = "No description available"
	}
	return Verdict{Modifies: *parsed.Modifies, Description: description}
}

func failClosed(err error) Verdict {
	return Verdict{
		Modifies:    true,
		Description: fmt.Sprintf("Unable to analyze command (error: %v). Treating as potentially modifying.", err),
	}
}
