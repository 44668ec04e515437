// Package terminal implements the interactive CLI front end: the prompt
// loop, slash commands, and rendering of agent events. It owns no
// conversation logic; everything flows through agent.ProcessCallbacks.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/NateSpencerWx/melon/agent"
	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/session"
)

const logo = `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ███╗   ███╗███████╗██╗      ██████╗ ███╗   ██╗          ║
║   ████╗ ████║██╔════╝██║     ██╔═══██╗████╗  ██║          ║
║   ██╔████╔██║█████╗  ██║     ██║   ██║██╔██╗ ██║          ║
║   ██║╚██╔╝██║██╔══╝  ██║     ██║   ██║██║╚██╗██║          ║
║   ██║ ╚═╝ ██║███████╗███████╗╚██████╔╝██║ ╚████║          ║
║   ╚═╝     ╚═╝╚══════╝╚══════╝ ╚═════╝ ╚═╝  ╚═══╝          ║
║                                                           ║
║   Do (almost) anything on your computer with AI           ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`

const (
	colorRed     = "\033[91m"
	colorGreen   = "\033[92m"
	colorYellow  = "\033[93m"
	colorMagenta = "\033[95m"
	colorCyan    = "\033[96m"
	colorGray    = "\033[90m"
	colorReset   = "\033[0m"
)

// Terminal drives the interactive session for one agent.
type Terminal struct {
	agent *agent.Agent
}

func New(a *agent.Agent) *Terminal {
	return &Terminal{agent: a}
}

// Run starts the interactive loop. SIGINT triggers a best-effort session
// save before the process exits; operator input otherwise blocks without
// timeout.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	fmt.Print(colorRed + logo + colorReset)
	fmt.Println(colorCyan + "💡 Type your request in natural language. Type '/clear' to reset conversation history, '/quit' to leave." + colorReset)
	t.printDivider()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		<-sig
		if err := t.agent.Session.Save(); err != nil {
			fmt.Printf("\n%sWarning: failed to save session: %v%s\n", colorYellow, err, colorReset)
		}
		fmt.Println("\n" + colorGreen + "👋 Thanks for using Melon!" + colorReset)
		os.Exit(0)
	}()

	if initialPrompt != "" {
		t.processTurn(ctx, initialPrompt)
		t.printDivider()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(colorMagenta + "🍉 " + colorReset)
		if !scanner.Scan() {
			// EOF ends the session.
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "/quit", "/exit":
			fmt.Println(colorGreen + "👋 Thanks for using Melon!" + colorReset)
			return nil
		case "/clear", "clear", "reset":
			t.agent.Session.Reset()
			if err := t.agent.Session.Save(); err != nil {
				fmt.Printf("%sWarning: failed to save session: %v%s\n", colorYellow, err, colorReset)
			}
			fmt.Println(colorGreen + "🧹 Conversation history cleared. Starting fresh!" + colorReset)
			t.printDivider()
			continue
		}

		t.processTurn(ctx, input)
		t.printDivider()
	}

	return scanner.Err()
}

// processTurn runs one user turn and renders the agent's events. Errors end
// the turn, not the session: history appended so far is already saved.
func (t *Terminal) processTurn(ctx context.Context, input string) {
	callbacks := agent.ProcessCallbacks{
		OnStatus: func(status string) {
			fmt.Printf("%s🤔 %s%s\n", colorCyan, status, colorReset)
		},
		OnAssistantMessage: func(message string) {
			if message == "" {
				fmt.Println(colorYellow + "⚠️  Melon didn't have anything to say. This might be due to rate limiting or an API issue." + colorReset)
				return
			}
			fmt.Println(colorCyan + "💬 Here's what Melon has to say:" + colorReset)
			fmt.Println(message)
		},
		OnToolCall: func(tc session.ToolCall) {
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Printf("%s🔧 Melon wants to run %s with args: %s%s\n", colorCyan, tc.Name, tc.Arguments, colorReset)
			case agent.ToolVerbosityInfo:
				fmt.Printf("%s🔧 Melon wants to run %s%s\n", colorCyan, tc.Name, colorReset)
			}
		},
		OnToolResult: func(tc session.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("%s✅ %s output: %s%s\n", colorCyan, tc.Name, result, colorReset)
			}
		},
		OnWarning: func(warning string) {
			fmt.Printf("%sWarning: %s%s\n", colorYellow, warning, colorReset)
		},
	}

	if err := t.agent.ProcessUserInput(ctx, input, callbacks); err != nil {
		if errors.Is(err, agent.ErrIterationLimit) {
			fmt.Println(colorYellow + "⚠️  Maximum iteration limit reached. Melon tried to make too many tool calls in succession." + colorReset)
			return
		}
		fmt.Printf("%s❌ Error: %v%s\n", colorRed, err, colorReset)
	}
}

func (t *Terminal) printDivider() {
	fmt.Println(colorGray + strings.Repeat("─", 60) + colorReset)
}
