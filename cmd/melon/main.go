package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NateSpencerWx/melon/agent"
	"github.com/NateSpencerWx/melon/agent/terminal"
	"github.com/NateSpencerWx/melon/config"
	"github.com/NateSpencerWx/melon/llm"
	"github.com/NateSpencerWx/melon/safety"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/joho/godotenv"
)

func main() {
	sessionFlag := flag.String("s", "", "Session name to create or use")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	listFlag := flag.Bool("l", false, "List saved sessions and exit")
	providerFlag := flag.String("provider", "", "LLM provider: openai, anthropic, gemini, bedrock, or mock")
	modelFlag := flag.String("model", "", "Conversational model identifier")
	toolVerbosityFlag := flag.String("tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	flag.Parse()

	// .env keeps API keys out of the shell profile, as the original did.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}

	if *listFlag {
		names, err := session.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing sessions: %+v\n", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	ctx := context.Background()

	if cfg.Provider == "openai" {
		if err := ensureAPIKey(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	var sess *session.Session
	switch {
	case *resumeFlag != "":
		sess, err = session.Load(*resumeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", *resumeFlag, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session: %s\n", sess.Name)
		if *toolVerbosityFlag == "" && sess.ToolVerbosity != "" {
			*toolVerbosityFlag = sess.ToolVerbosity
		}
	default:
		name := *sessionFlag
		if name == "" {
			name = defaultSessionName()
		}
		sess, err = session.New(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", name, err)
			os.Exit(1)
		}
	}

	verbosity, err := parseVerbosity(*toolVerbosityFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	sess.Provider = cfg.Provider
	sess.Model = cfg.Model
	sess.ToolVerbosity = string(verbosity)

	chatClient, err := newProviderClient(ctx, cfg.Provider, cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.Provider, err)
		os.Exit(1)
	}
	classifierClient, err := newProviderClient(ctx, cfg.Provider, cfg.ClassifierModel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing classifier client: %+v\n", err)
		os.Exit(1)
	}

	retryPolicy := llm.RetryPolicy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  cfg.Retry.InitialDelayDuration(),
		BackoffFactor: cfg.Retry.BackoffFactor,
	}
	chatClient = llm.NewRetryingClient(chatClient, retryPolicy)
	classifierClient = llm.NewRetryingClient(classifierClient, retryPolicy)

	classifier := safety.NewClassifier(classifierClient)
	prompter := safety.NewConsolePrompter(os.Stdin, os.Stdout)
	gate := safety.NewGate(classifier, prompter, cfg.AlwaysAllow)

	registry := tools.NewRegistry()
	registry.Register(tools.NewRunTerminalCommandTool(gate, cfg.CommandTimeout()))

	melonAgent := agent.New(cfg, sess, chatClient, registry, verbosity)

	initialPrompt := strings.Join(flag.Args(), " ")
	term := terminal.New(melonAgent)
	if err := term.Run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Melon stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func newProviderClient(ctx context.Context, provider, model string) (llm.LLMClient, error) {
	switch provider {
	case "openai":
		return llm.NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return llm.NewAnthropicLLMClient(ctx, model)
	case "gemini":
		return llm.NewGeminiLLMClient(ctx, model)
	case "bedrock":
		return llm.NewBedrockLLMClient(ctx, model)
	case "mock":
		return &llm.MockLLMClient{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// ensureAPIKey walks a new user through OpenRouter onboarding: prompt for a
// key, verify it with a cheap test call, and persist it to .env.
func ensureAPIKey(ctx context.Context) error {
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "" {
		fmt.Println("✓ API key loaded successfully")
		return nil
	}

	fmt.Println("⚠️  No OpenRouter API key found in .env file.")
	fmt.Println()
	fmt.Println("📋 To get started:")
	fmt.Println("   1. Sign up at: https://openrouter.ai/")
	fmt.Println("   2. Get your API key from: https://openrouter.ai/keys")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("🔑 Enter your OpenRouter API key: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("no API key provided")
		}
		key := strings.TrimSpace(line)
		if key == "" {
			return fmt.Errorf("no API key provided")
		}

		if err := validateAPIKey(ctx, key); err != nil {
			fmt.Printf("❌ Invalid API key: %v\n", err)
			fmt.Println("🔄 Please try again.")
			continue
		}

		if err := os.WriteFile(".env", []byte("OPENROUTER_API_KEY="+key+"\n"), 0600); err != nil {
			return fmt.Errorf("could not save API key to .env: %w", err)
		}
		os.Setenv("OPENROUTER_API_KEY", key)
		fmt.Println("✓ API key saved to .env")
		return nil
	}
}

func validateAPIKey(ctx context.Context, key string) error {
	client := llm.NewOpenAIClientWithKey(key, llm.OpenRouterBaseURL, config.DefaultClassifierModel)
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := client.Chat(vctx, []session.Message{
		{Role: "system", Content: "Say 'OK' if this works. You ABSOLUTELY MUST respond with only 'OK' if you see this message."},
	}, nil)
	if err != nil {
		return err
	}
	if !strings.Contains(resp.Content, "OK") {
		return fmt.Errorf("test API call returned an unexpected response")
	}
	return nil
}

func parseVerbosity(raw string) (agent.ToolVerbosity, error) {
	switch raw {
	case "", "none":
		return agent.ToolVerbosityNone, nil
	case "info":
		return agent.ToolVerbosityInfo, nil
	case "all":
		return agent.ToolVerbosityAll, nil
	default:
		return "", fmt.Errorf("invalid tool verbosity %q: must be 'none', 'info', or 'all'", raw)
	}
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "melon"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}
