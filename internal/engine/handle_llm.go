package engine

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

// handleOpenAI covers the openai node: chat completions and image
// generation. The raw provider JSON is returned unchanged so downstream
// nodes can pick whatever fields they need.
func handleOpenAI(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	apiKey, err := ResolveAPIKey(ctx, ec, node, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	resource := cfgString(node, "resource", "chat")
	operation := cfgString(node, "operation", "completions")

	switch {
	case resource == "chat" && operation == "completions":
		promptRaw, err := cfgRequiredString(node, "prompt", "Prompt")
		if err != nil {
			return nil, err
		}
		prompt := Interpolate(promptRaw, input)

		var messages []models.ChatMessage
		if system := cfgString(node, "systemMessage", ""); system != "" {
			messages = append(messages, models.ChatMessage{Role: "system", Content: system})
		}
		messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

		return ec.LLM.ChatCompletion(ctx, &models.ChatRequest{
			Provider: "openai",
			APIKey:   apiKey,
			Model:    cfgString(node, "model", "gpt-4o"),
			Messages: messages,
		})

	case resource == "image" && operation == "generate":
		promptRaw, err := cfgRequiredString(node, "prompt", "Prompt")
		if err != nil {
			return nil, err
		}
		return ec.LLM.GenerateImage(ctx, &models.ImageRequest{
			APIKey: apiKey,
			Prompt: Interpolate(promptRaw, input),
			Model:  cfgString(node, "model", "dall-e-3"),
			Size:   cfgString(node, "size", "1024x1024"),
			N:      1,
		})

	default:
		return nil, fmt.Errorf("Unsupported OpenAI operation")
	}
}

// handleOpenRouter performs a chat completion through OpenRouter, passing
// the sampling parameters through only when configured.
func handleOpenRouter(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	apiKey, err := ResolveAPIKey(ctx, ec, node, "OPENROUTER_API_KEY")
	if err != nil {
		return nil, err
	}

	promptRaw, err := cfgRequiredString(node, "prompt", "Prompt")
	if err != nil {
		return nil, err
	}
	prompt := Interpolate(promptRaw, input)

	var messages []models.ChatMessage
	if system := cfgString(node, "systemMessage", ""); system != "" {
		messages = append(messages, models.ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	return ec.LLM.ChatCompletion(ctx, &models.ChatRequest{
		Provider:         "openrouter",
		APIKey:           apiKey,
		Model:            cfgString(node, "model", "openai/gpt-4o-mini"),
		Messages:         messages,
		Temperature:      cfgFloatPtr(node, "temperature"),
		MaxTokens:        cfgIntPtr(node, "maxTokens"),
		TopP:             cfgFloatPtr(node, "topP"),
		FrequencyPenalty: cfgFloatPtr(node, "frequencyPenalty"),
		PresencePenalty:  cfgFloatPtr(node, "presencePenalty"),
	})
}

// handleLLM is the convenience single-prompt node: OpenRouter with fixed
// sampling defaults.
func handleLLM(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	apiKey, err := ResolveAPIKey(ctx, ec, node, "OPENROUTER_API_KEY")
	if err != nil {
		return nil, err
	}

	promptRaw, err := cfgRequiredString(node, "prompt", "Prompt")
	if err != nil {
		return nil, err
	}

	temperature := 0.7
	maxTokens := 1000
	return ec.LLM.ChatCompletion(ctx, &models.ChatRequest{
		Provider:    "openrouter",
		APIKey:      apiKey,
		Model:       cfgString(node, "model", "openai/gpt-4o-mini"),
		Messages:    []models.ChatMessage{{Role: "user", Content: Interpolate(promptRaw, input)}},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
}
