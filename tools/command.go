package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/NateSpencerWx/melon/errors"
)

// DefaultCommandTimeout bounds shell execution wall-clock time.
const DefaultCommandTimeout = 60 * time.Second

// ExecutionResult is the successful payload serialized into a tool result:
// combined stdout+stderr and the shell's exit code. A non-zero exit code is
// a normal result at this layer; the model interprets it.
type ExecutionResult struct {
	Output     string `json:"output"`
	ReturnCode int    `json:"returncode"`
}

// ExecutionError is the failure payload: timeout, launch failure, or a
// denial from the approval pipeline. Denied marks operator rejections so
// the model can distinguish "you may not" from "it broke".
type ExecutionError struct {
	Error  string `json:"error"`
	Denied bool   `json:"denied,omitempty"`
}

// RunTerminalCommandTool executes shell commands after they pass the
// approval pipeline. It is the only tool exposed to the model.
type RunTerminalCommandTool struct {
	approver CommandApprover
	timeout  time.Duration
}

// NewRunTerminalCommandTool creates the command tool. A zero timeout falls
// back to DefaultCommandTimeout.
func NewRunTerminalCommandTool(approver CommandApprover, timeout time.Duration) *RunTerminalCommandTool {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &RunTerminalCommandTool{approver: approver, timeout: timeout}
}

func (t *RunTerminalCommandTool) Name() string { return "run_terminal_command" }

func (t *RunTerminalCommandTool) Description() string {
	return "Run a terminal command on the user's computer and return the output. " +
		"Use this for actions that require executing commands. Commands are automatically reviewed: " +
		"read-only commands execute immediately, while commands that modify the system prompt the user " +
		"for approval out-of-band, so do not ask for permission yourself. " +
		"Be cautious with commands that could delete files, modify system files, or perform other risky operations. " +
		"BE AS SAFE AS POSSIBLE WHILE STILL DOING EVERYTHING YOU CAN TO FULFILL THE USER'S REQUEST."
}

func (t *RunTerminalCommandTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to run.",
			},
		},
		"required": []string{"command"},
	}
}

// Execute parses the argument payload, runs the approval pipeline, and
// executes the approved command. Denials and execution failures are
// serialized into the returned JSON payload; an error return is reserved
// for malformed arguments and approver infrastructure failures, which the
// caller reports as the tool result.
func (t *RunTerminalCommandTool) Execute(ctx context.Context, rawArgs string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments for run_terminal_command")
	}
	if args.Command == "" {
		return "", errors.New("missing or empty 'command' argument")
	}

	approval, err := t.approver.ApproveCommand(ctx, args.Command)
	if err != nil {
		return "", errors.Wrapf(err, "approval failed for command %q", args.Command)
	}
	if !approval.Proceed {
		return marshalPayload(ExecutionError{Error: approval.Rejection, Denied: true})
	}

	return marshalPayload(t.run(ctx, approval.Command))
}

// run executes the command via the host shell and shapes the outcome. The
// shell receives the literal command string; injection risk is accepted and
// mitigated only by the approval gate.
func (t *RunTerminalCommandTool) run(ctx context.Context, command string) interface{} {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}

	cmd := exec.CommandContext(cctx, shell, flag, command)
	output, runErr := cmd.CombinedOutput()

	if cctx.Err() == context.DeadlineExceeded {
		// No partial output on timeout; the command did not finish.
		return ExecutionError{Error: timeoutMessage(t.timeout)}
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			// The shell ran and reported failure; that is a normal result.
			return ExecutionResult{Output: string(output), ReturnCode: exitErr.ExitCode()}
		}
		return ExecutionError{Error: runErr.Error()}
	}

	return ExecutionResult{Output: string(output), ReturnCode: 0}
}

func timeoutMessage(timeout time.Duration) string {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = int(DefaultCommandTimeout.Seconds())
	}
	return fmt.Sprintf("Command timed out after %d seconds", secs)
}

func marshalPayload(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "failed to serialize tool result")
	}
	return string(data), nil
}

// ErrorPayload serializes a bare error message in the ExecutionError shape.
// Used by the agent when a dispatch fails outside the tool itself, so every
// tool result the model sees has a consistent format.
func ErrorPayload(message string) string {
	data, err := json.Marshal(ExecutionError{Error: message})
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, message)
	}
	return string(data)
}
