package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"tinychat/config"
	"tinychat/model"
)

// Complete runs a non-streaming completion and returns the text of the first
// choice. A response without a non-empty first choice is ErrUnexpectedResponse.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages:    toOpenAIMessages(req.Messages),
		Model:       openai.ChatModel(DefaultModelName),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}

	// Fields the server accepts beyond the OpenAI schema
	var opts []option.RequestOption
	if req.TopK != nil {
		opts = append(opts, option.WithJSONSet("top_k", *req.TopK))
	}
	if req.SystemPrompt != nil {
		opts = append(opts, option.WithJSONSet("system_prompt", *req.SystemPrompt))
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Backend] POST %s (%d messages)", EndpointCompletions, len(req.Messages))
	}

	resp, err := c.completions.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", NewStatusError(apiErr.StatusCode, EndpointCompletions, apiErr.RawJSON())
		}
		return "", fmt.Errorf("POST %s: %w", EndpointCompletions, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrUnexpectedResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// toOpenAIMessages converts wire messages to SDK params. Function results keep
// their role and name; the server formats them for the model.
func toOpenAIMessages(msgs []WireMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case model.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		case model.RoleFunction:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfFunction: &openai.ChatCompletionFunctionMessageParam{
					Name:    msg.Name,
					Content: openai.String(msg.Content),
				},
			}
		case "system":
			result[i] = openai.SystemMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}
