package tools

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approveAll proceeds with every command unchanged.
type approveAll struct{ lastCommand string }

func (a *approveAll) ApproveCommand(ctx context.Context, command string) (Approval, error) {
	a.lastCommand = command
	return Approval{Proceed: true, Command: command}, nil
}

// rejectAll denies every command with a fixed message.
type rejectAll struct{ message string }

func (r *rejectAll) ApproveCommand(ctx context.Context, command string) (Approval, error) {
	return Approval{Rejection: r.message}, nil
}

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test shell commands assume a POSIX sh")
	}
}

func execute(t *testing.T, tool *RunTerminalCommandTool, command string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"command": command})
	require.NoError(t, err)
	result, err := tool.Execute(context.Background(), string(raw))
	require.NoError(t, err)
	return result
}

func TestExecuteCapturesOutputAndExitCode(t *testing.T) {
	skipOnWindows(t)
	tool := NewRunTerminalCommandTool(&approveAll{}, 0)

	var result ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(execute(t, tool, "echo hello")), &result))

	assert.Equal(t, "hello\n", result.Output)
	assert.Equal(t, 0, result.ReturnCode)
}

func TestExecuteNonZeroExitIsNormalResult(t *testing.T) {
	skipOnWindows(t)
	tool := NewRunTerminalCommandTool(&approveAll{}, 0)

	var result ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(execute(t, tool, "exit 3")), &result))

	assert.Equal(t, 3, result.ReturnCode)
}

func TestExecuteMergesStderrIntoOutput(t *testing.T) {
	skipOnWindows(t)
	tool := NewRunTerminalCommandTool(&approveAll{}, 0)

	var result ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(execute(t, tool, "echo out; echo err 1>&2")), &result))

	assert.Contains(t, result.Output, "out")
	assert.Contains(t, result.Output, "err")
}

func TestExecuteTimeout(t *testing.T) {
	skipOnWindows(t)
	tool := NewRunTerminalCommandTool(&approveAll{}, time.Second)

	start := time.Now()
	payload := execute(t, tool, "sleep 5")
	assert.Less(t, time.Since(start), 4*time.Second)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Contains(t, result["error"], "timed out after")
	// No partial output on timeout.
	assert.NotContains(t, result, "output")
}

func TestTimeoutMessageDefault(t *testing.T) {
	assert.Equal(t, "Command timed out after 60 seconds", timeoutMessage(DefaultCommandTimeout))
}

func TestExecuteDenialBecomesPayload(t *testing.T) {
	denial := "Command denied by user. Reason: not yet. Please try a different approach based on this feedback."
	tool := NewRunTerminalCommandTool(&rejectAll{message: denial}, 0)

	payload := execute(t, tool, "rm file.txt")

	var result ExecutionError
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Equal(t, denial, result.Error)
	assert.True(t, result.Denied)
}

func TestExecuteRunsEditedCommand(t *testing.T) {
	skipOnWindows(t)
	// The approver may substitute the command; the edited text is what runs.
	editing := &editingApprover{replacement: "echo edited"}
	tool := NewRunTerminalCommandTool(editing, 0)

	var result ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(execute(t, tool, "echo original")), &result))

	assert.Equal(t, "edited\n", result.Output)
}

type editingApprover struct{ replacement string }

func (e *editingApprover) ApproveCommand(ctx context.Context, command string) (Approval, error) {
	return Approval{Proceed: true, Command: e.replacement}, nil
}

func TestExecuteMalformedArguments(t *testing.T) {
	tool := NewRunTerminalCommandTool(&approveAll{}, 0)

	_, err := tool.Execute(context.Background(), "not json")
	assert.Error(t, err)

	_, err = tool.Execute(context.Background(), `{"command": ""}`)
	assert.Error(t, err)
}
