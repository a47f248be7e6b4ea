// Package llm implements the engine's LlmClient capability over the
// OpenAI-compatible chat API. OpenRouter is reached through the same
// client with its base URL swapped in.
package llm

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/weftworks/weft/pkg/models"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Client builds a short-lived provider client per call; the API key is
// resolved from a credential at execution time so nothing is cached.
type Client struct{}

func New() *Client {
	return &Client{}
}

// ChatCompletion performs one completion and returns the raw response as
// dynamic JSON. The engine digs choices[0].message out of it, so the
// wire shape must survive the round-trip unmodified.
func (c *Client) ChatCompletion(ctx context.Context, req *models.ChatRequest) (any, error) {
	client := c.newClient(req.Provider, req.APIKey)

	completion := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req.Messages),
		Tools:    convertTools(req.Tools),
	}
	if req.Temperature != nil {
		completion.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		completion.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		completion.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		completion.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		completion.PresencePenalty = float32(*req.PresencePenalty)
	}

	resp, err := client.CreateChatCompletion(ctx, completion)
	if err != nil {
		return nil, err
	}
	return toDynamic(resp)
}

// GenerateImage creates images through the OpenAI images endpoint.
func (c *Client) GenerateImage(ctx context.Context, req *models.ImageRequest) (any, error) {
	client := c.newClient("openai", req.APIKey)

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		Size:   req.Size,
		N:      req.N,
	})
	if err != nil {
		return nil, err
	}
	return toDynamic(resp)
}

func (c *Client) newClient(provider, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if provider == "openrouter" {
		cfg.BaseURL = openRouterBaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func convertMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, m)
	}
	return out
}

func convertTools(tools []models.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

// toDynamic round-trips a typed response through JSON so callers see the
// provider wire shape rather than SDK structs.
func toDynamic(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
