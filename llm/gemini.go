package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient. It requires the
// GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{model: client.GenerativeModel(modelName)}, nil
}

// Chat sends a chat request to the Gemini API. Gemini's chat format cannot
// carry our tool-shaped history back in the prompt, so the history is
// flattened to plain text pre-emptively; responses still surface structured
// tool calls.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	history := toGeminiContent(FlattenToolHistory(messages))
	if len(history) == 0 {
		return nil, errors.New("cannot send an empty conversation to Gemini")
	}

	g.model.Tools = toGeminiTools(availableTools)

	last := history[len(history)-1]
	chat := g.model.StartChat()
	chat.History = history[:len(history)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	return fromGeminiResponse(resp)
}

// toGeminiContent converts flattened messages to Gemini's content format.
// Gemini knows only "user" and "model" roles; system prompts ride along as
// user content at the head of the history.
func toGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

func toGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  toGeminiSchema(t.Parameters()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiSchema converts the flat JSON-schema object our tools declare
// into genai's schema type. Only string-typed properties are needed for the
// current tool surface.
func toGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
	}
	props, _ := params["properties"].(map[string]interface{})
	for name, raw := range props {
		prop := &genai.Schema{Type: genai.TypeString}
		if p, ok := raw.(map[string]interface{}); ok {
			if d, ok := p["description"].(string); ok {
				prop.Description = d
			}
		}
		schema.Properties[name] = prop
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

// fromGeminiResponse converts a Gemini response into our internal message
// format. Gemini does not assign tool-call ids, so correlation ids are
// synthesized here.
func fromGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	msg := &session.Message{Role: "assistant"}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			msg.Content += string(v)
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to encode function call arguments for %s", v.Name)
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ID:        uuid.NewString(),
				Name:      v.Name,
				Arguments: string(args),
			})
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return msg, nil
}
