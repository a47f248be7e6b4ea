package engine

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

// HandlerFunc evaluates one node kind: (context, node, input) → output.
// Errors are reported as strings inside the NodeResult by the driver;
// handlers never panic and must honour ctx cancellation on I/O.
type HandlerFunc func(ctx context.Context, ec *Context, node *models.Node, input any) (any, error)

// Registry maps node kinds to handlers. Unknown kinds resolve to a soft
// no-op returning {"result": "Node executed"} — a stable contract that
// keeps partially supported imported workflows runnable and debuggable.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry returns a registry with every built-in node kind bound.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]HandlerFunc)}

	// Triggers
	r.Register("trigger-start", handleTrigger)
	r.Register("trigger-schedule", handleTrigger)
	r.Register("trigger-webhook", handleTrigger)
	r.Register("chat-trigger", handleChatTrigger)

	// Integrations
	r.Register("http-request", handleHTTPRequest)
	r.Register("openai", handleOpenAI)
	r.Register("openrouter", handleOpenRouter)
	r.Register("llm", handleLLM)
	r.Register("ai-agent", handleAgent)
	r.Register("postgres", handlePostgres)
	r.Register("rss-feed-read", handleRSSFeedRead)
	r.Register("slack", handleSlack)

	// Control flow
	r.Register("if", handleIf)
	r.Register("filter", handleFilter)
	r.Register("switch", handleSwitch)
	r.Register("wait", handleWait)

	// Data
	r.Register("tool", handleTool)
	r.Register("code", handleCode)
	r.Register("convert-to-file", handleConvertToFile)
	r.Register("extract-from-file", handleExtractFromFile)
	r.Register("read-write-file", handleReadWriteFile)
	r.Register("dateTime", handleDateTime)

	return r
}

// Register binds a handler to a node kind, replacing any existing binding.
func (r *Registry) Register(kind string, h HandlerFunc) {
	r.handlers[kind] = h
}

// Handle dispatches a node to its handler.
func (r *Registry) Handle(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, ok := r.handlers[node.Kind]
	if !ok {
		return map[string]any{"result": "Node executed"}, nil
	}
	return h(ctx, ec, node, input)
}

// ── Config accessors ────────────────────────────────────────

// cfgString reads a string config field, falling back when absent or of
// the wrong type.
func cfgString(node *models.Node, key, fallback string) string {
	if v, ok := node.Config[key].(string); ok {
		return v
	}
	return fallback
}

// cfgRequiredString reads a string config field that must be present.
// The error message names the field the way the UI labels it.
func cfgRequiredString(node *models.Node, key, label string) (string, error) {
	v, ok := node.Config[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s not specified", label)
	}
	return v, nil
}

func cfgBool(node *models.Node, key string, fallback bool) bool {
	if v, ok := node.Config[key].(bool); ok {
		return v
	}
	return fallback
}

// cfgFloat reads a numeric config field. JSON numbers decode as float64;
// values persisted by typed writers may be ints.
func cfgFloat(node *models.Node, key string, fallback float64) float64 {
	switch v := node.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func cfgInt(node *models.Node, key string, fallback int64) int64 {
	switch v := node.Config[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return fallback
}

// cfgFloatPtr returns the field as *float64, nil when unset. Used for
// sampling parameters that are forwarded only when configured.
func cfgFloatPtr(node *models.Node, key string) *float64 {
	switch v := node.Config[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func cfgIntPtr(node *models.Node, key string) *int {
	switch v := node.Config[key].(type) {
	case float64:
		i := int(v)
		return &i
	case int:
		return &v
	}
	return nil
}
