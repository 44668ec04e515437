package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter is the operator-facing side of the approval gate. The console
// implementation blocks on terminal input with no timeout; operator
// interaction is authoritative. Tests script it.
type Prompter interface {
	// ShowCommand displays a command pending approval and its description.
	// edited is true when the command is a resubmission from an Edit.
	ShowCommand(command, description string, edited bool)
	// ReadAction reads one raw action token from the operator.
	ReadAction() (string, error)
	// ReadDenyReason asks why the command was denied; empty is allowed.
	ReadDenyReason() (string, error)
	// ReadEditedCommand reads replacement command text; empty means the
	// operator backed out of the edit.
	ReadEditedCommand() (string, error)
	// ShowInvalidAction reports an unrecognized action token.
	ShowInvalidAction()
}

// ANSI colors matching the rest of the terminal output.
const (
	colorYellow  = "\033[93m"
	colorCyan    = "\033[96m"
	colorMagenta = "\033[95m"
	colorRed     = "\033[91m"
	colorReset   = "\033[0m"
)

// ConsolePrompter drives the approval negotiation on a terminal.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: bufio.NewReader(in), out: out}
}

func (p *ConsolePrompter) ShowCommand(command, description string, edited bool) {
	header := "⚠️  Command requires approval:"
	if edited {
		header = "Updated command still requires approval:"
	}
	fmt.Fprintf(p.out, "\n%s%s%s\n", colorYellow, header, colorReset)
	fmt.Fprintf(p.out, "%sCommand:%s %s\n", colorCyan, colorReset, command)
	fmt.Fprintf(p.out, "%sDescription:%s %s\n", colorCyan, colorReset, description)
}

func (p *ConsolePrompter) ReadAction() (string, error) {
	return p.readLine(fmt.Sprintf("\n%sDo you want to [A]ccept, [D]eny, or [E]dit this command? %s", colorMagenta, colorReset))
}

func (p *ConsolePrompter) ReadDenyReason() (string, error) {
	return p.readLine(fmt.Sprintf("%s📝 Why did you deny this command? (This helps the AI adjust): %s", colorMagenta, colorReset))
}

func (p *ConsolePrompter) ReadEditedCommand() (string, error) {
	return p.readLine(fmt.Sprintf("%sEnter the modified command: %s", colorMagenta, colorReset))
}

func (p *ConsolePrompter) ShowInvalidAction() {
	fmt.Fprintf(p.out, "%sInvalid choice. Please enter A, D, or E.%s\n", colorRed, colorReset)
}

func (p *ConsolePrompter) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
