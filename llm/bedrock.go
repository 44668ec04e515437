package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockLLMClient runs Anthropic models through AWS Bedrock. The request
// and response bodies use Anthropic's raw JSON shape, built by hand because
// Bedrock's InvokeModel is an opaque byte pipe.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient. It requires AWS
// credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Chat sends a chat request to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	body, err := buildBedrockRequest(messages, availableTools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return parseBedrockResponse(resp.Body)
}

func buildBedrockRequest(messages []session.Message, availableTools []tools.Tool) ([]byte, error) {
	var bedrockMessages []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content

		case "user":
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{{"type": "text", "text": msg.Content}},
			})

		case "assistant":
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role":    "assistant",
				"content": blocks,
			})

		case "tool":
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Content,
				}},
			})
		}
	}

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          bedrockMessages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(availableTools) > 0 {
		var decls []map[string]interface{}
		for _, t := range availableTools {
			decls = append(decls, map[string]interface{}{
				"name":         t.Name(),
				"description":  t.Description(),
				"input_schema": t.Parameters(),
			})
		}
		request["tools"] = decls
	}

	return json.Marshal(request)
}

func parseBedrockResponse(body []byte) (*session.Message, error) {
	var response struct {
		Error   interface{} `json:"error"`
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return nil, errors.New("Bedrock API error: %v", response.Error)
	}

	msg := &session.Message{Role: "assistant"}
	for i, block := range response.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			id := block.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, block.Name)
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ID:        id,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	return msg, nil
}
