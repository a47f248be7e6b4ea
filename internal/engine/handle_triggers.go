package engine

import (
	"context"

	"github.com/weftworks/weft/pkg/models"
)

// handleTrigger covers trigger-start, trigger-schedule and trigger-webhook.
// Triggers carry no data of their own; scheduling and webhook delivery
// happen outside the engine, which only sees the resulting run request.
func handleTrigger(_ context.Context, _ *Context, _ *models.Node, _ any) (any, error) {
	return map[string]any{"triggered": true}, nil
}

// handleChatTrigger returns the configured initial input so chat-driven
// workflows can seed downstream nodes with the user's message.
func handleChatTrigger(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
	if v, ok := node.Config["initialInput"]; ok {
		return normalize(v), nil
	}
	return map[string]any{"triggered": true}, nil
}

// handleTool returns a copy of the node config. Tool nodes are static
// descriptors; they only carry meaning when attached to an agent through
// a toPort="tools" edge, where the agent reads the config directly.
func handleTool(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
	out := make(map[string]any, len(node.Config))
	for k, v := range node.Config {
		out[k] = v
	}
	return out, nil
}
