package llm

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenRouterBaseURL is the default endpoint; the original Melon talked to
// OpenRouter through the OpenAI wire protocol.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAILLMClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a client for an OpenAI-compatible API.
// OPENROUTER_API_KEY takes precedence over OPENAI_API_KEY; the base URL can
// be overridden with OPENAI_BASE_URL.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	baseURL := OpenRouterBaseURL
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		baseURL = ""
	}
	if apiKey == "" {
		return nil, errors.New("no API key: set OPENROUTER_API_KEY or OPENAI_API_KEY")
	}
	if override := os.Getenv("OPENAI_BASE_URL"); override != "" {
		baseURL = override
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	// The SDK returns a value; keep a pointer for the struct field.
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

// NewOpenAIClientWithKey builds a client with an explicit key and base URL.
// Used by the onboarding flow to validate a freshly entered key.
func NewOpenAIClientWithKey(apiKey, baseURL, modelName string) *OpenAILLMClient {
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(options...)
	return &OpenAILLMClient{client: &c, model: modelName}
}

// Chat sends the conversation and tool declarations, returning the
// assistant's next message with any structured tool calls preserved.
func (o *OpenAILLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(availableTools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if isToolHistoryRejection(err) && hasToolTraffic(messages) {
			return nil, errors.Wrapf(ErrToolHistoryUnsupported, "%v", err)
		}
		return nil, errors.Wrapf(err, "chat completion request failed")
	}

	return fromOpenAIResponse(resp), nil
}

func fromOpenAIResponse(resp *openai.ChatCompletion) *session.Message {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: "assistant", Content: ""}
	}

	choice := resp.Choices[0].Message
	msg := &session.Message{Role: "assistant", Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg
}

func toOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			assistant := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, assistant.ToParam())
		case "tool":
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(t.Parameters()),
		}))
	}
	return out
}

// isToolHistoryRejection reports whether a provider error looks like a 400
// caused by structured tool messages in the prompt. Some OpenRouter-routed
// models accept the tool declaration but choke on tool-role history.
func isToolHistoryRejection(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	text := strings.ToLower(apiErr.Error())
	return strings.Contains(text, "tool")
}

func hasToolTraffic(messages []session.Message) bool {
	for _, m := range messages {
		if m.Role == "tool" || len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}
