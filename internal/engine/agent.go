package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

const maxAgentIterations = 10

// handleAgent runs the tool-use loop: send the conversation plus the tool
// schemas, execute any tool calls the model makes, append the results as
// tool messages, repeat. A reply without tool calls terminates the loop
// as {"text": ...}; a model that never stops calling tools is cut off at
// maxAgentIterations.
func handleAgent(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	provider := cfgString(node, "provider", "openai")
	model := cfgString(node, "model", "gpt-4o")

	promptRaw, err := cfgRequiredString(node, "prompt", "Prompt")
	if err != nil {
		return nil, err
	}
	prompt := Interpolate(promptRaw, input)

	toolNodes := agentToolNodes(ec, node.ID)
	tools, mcpTools, err := buildToolSchemas(ctx, ec, toolNodes)
	if err != nil {
		return nil, err
	}

	envVar := "OPENAI_API_KEY"
	if provider != "openai" {
		envVar = "OPENROUTER_API_KEY"
	}
	apiKey, err := ResolveAPIKey(ctx, ec, node, envVar)
	if err != nil {
		return nil, err
	}

	var messages []models.ChatMessage
	if system := cfgString(node, "systemMessage", ""); system != "" {
		messages = append(messages, models.ChatMessage{Role: "system", Content: Interpolate(system, input)})
	}
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	for i := 0; i < maxAgentIterations; i++ {
		resp, err := ec.LLM.ChatCompletion(ctx, &models.ChatRequest{
			Provider: provider,
			APIKey:   apiKey,
			Model:    model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, err
		}

		message, ok := firstChoiceMessage(resp)
		if !ok {
			return nil, fmt.Errorf("Invalid LLM response")
		}

		calls := parseToolCalls(message["tool_calls"])
		if len(calls) == 0 {
			text, _ := message["content"].(string)
			return map[string]any{"text": text}, nil
		}

		content, _ := message["content"].(string)
		messages = append(messages, models.ChatMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: calls,
		})

		for _, call := range calls {
			result := runAgentTool(ctx, ec, toolNodes, mcpTools, call, input)
			messages = append(messages, models.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("Agent reached maximum iterations")
}

// agentToolNodes returns the tool nodes wired into the agent's "tools"
// port, preserving edge order.
func agentToolNodes(ec *Context, agentID string) []*models.Node {
	var out []*models.Node
	for _, edge := range ec.Edges {
		if edge.To != agentID || edge.ToPort == nil || *edge.ToPort != "tools" {
			continue
		}
		for i := range ec.Nodes {
			n := &ec.Nodes[i]
			if n.ID == edge.From && (n.Kind == "tool" || n.Kind == "rss-read-tool") {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// mcpBinding resolves a fully qualified tool name back to the server and
// the tool's original name.
type mcpBinding struct {
	server   *models.McpServer
	toolName string
}

// buildToolSchemas turns the attached tool nodes into function schemas.
// MCP-backed tool nodes are resolved against the live server so the model
// sees the real input schema; the advertised name is namespaced as
// serverName__toolName to survive round-tripping through the model.
func buildToolSchemas(ctx context.Context, ec *Context, toolNodes []*models.Node) ([]models.ToolDefinition, map[string]mcpBinding, error) {
	var tools []models.ToolDefinition
	mcpTools := make(map[string]mcpBinding)

	for _, tn := range toolNodes {
		if serverID := cfgString(tn, "mcpServerId", ""); serverID != "" {
			server, err := ec.Store.GetMcpServer(ctx, serverID)
			if err != nil || server == nil {
				return nil, nil, fmt.Errorf("MCP Server not found: %s", serverID)
			}
			targetName, ok := tn.Config["toolName"].(string)
			if !ok || targetName == "" {
				return nil, nil, fmt.Errorf("Tool name not specified in tool node")
			}

			available, err := ec.MCP.ListTools(ctx, server)
			if err != nil {
				return nil, nil, err
			}
			found := false
			for _, t := range available {
				if t.Name != targetName {
					continue
				}
				fullName := server.Name + "__" + t.Name
				tools = append(tools, models.ToolDefinition{
					Type: "function",
					Function: models.ToolFunction{
						Name:        fullName,
						Description: t.Description,
						Parameters:  t.InputSchema,
					},
				})
				mcpTools[fullName] = mcpBinding{server: server, toolName: t.Name}
				found = true
				break
			}
			if !found {
				return nil, nil, fmt.Errorf("Tool '%s' not found on MCP server '%s'", targetName, server.Name)
			}
			continue
		}

		if tn.Kind == "rss-read-tool" {
			tools = append(tools, models.ToolDefinition{
				Type: "function",
				Function: models.ToolFunction{
					Name:        cfgString(tn, "toolName", "rss_reader"),
					Description: cfgString(tn, "description", "Reads entries from an RSS feed."),
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"query": map[string]any{
								"type":        "string",
								"description": "Optional search query to filter feed items",
							},
						},
					},
				},
			})
			continue
		}

		tools = append(tools, models.ToolDefinition{
			Type: "function",
			Function: models.ToolFunction{
				Name:        cfgString(tn, "toolName", "unknown_tool"),
				Description: cfgString(tn, "description", "No description"),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string"},
					},
				},
			},
		})
	}

	return tools, mcpTools, nil
}

// runAgentTool executes one tool call and renders the outcome as the tool
// message content. Failures become content strings, not handler errors,
// so the model can observe and recover from them.
func runAgentTool(ctx context.Context, ec *Context, toolNodes []*models.Node, mcpTools map[string]mcpBinding, call models.ToolCall, input any) string {
	name := call.Function.Name

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil || args == nil {
		args = map[string]any{}
	}

	if binding, ok := mcpTools[name]; ok {
		res, err := ec.MCP.CallTool(ctx, binding.server, binding.toolName, args)
		if err != nil {
			return fmt.Sprintf("Error calling MCP tool: %s", err)
		}
		return stringify(res)
	}

	for _, tn := range toolNodes {
		if cfgString(tn, "toolName", "") != name {
			continue
		}
		if tn.Kind == "rss-read-tool" {
			return runRSSReadTool(ctx, ec, tn, input)
		}
		return fmt.Sprintf("Result from %s: Action completed successfully.", name)
	}
	return fmt.Sprintf("Error: Tool '%s' not found", name)
}

// runRSSReadTool is the agent-side twin of the rss-feed-read node, with a
// trimmed item shape that keeps tool results small.
func runRSSReadTool(ctx context.Context, ec *Context, tn *models.Node, input any) string {
	urlRaw := cfgString(tn, "url", "")
	if urlRaw == "" {
		return "Error: RSS Feed URL not configured in tool node"
	}
	url := Interpolate(urlRaw, input)

	resp, err := ec.HTTP.Do(ctx, &HttpRequest{Method: "GET", URL: url})
	if err != nil {
		return fmt.Sprintf("Error fetching feed: %s", err)
	}
	feed, err := ec.Feeds.Parse(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error parsing RSS: %s", err)
	}

	items := make([]any, 0, len(feed.Items))
	for _, entry := range feed.Items {
		items = append(items, map[string]any{
			"title":     entry.Title,
			"link":      entry.Link,
			"published": entry.Published,
		})
	}
	return stringify(items)
}

// firstChoiceMessage digs choices[0].message out of a raw completion.
func firstChoiceMessage(resp any) (map[string]any, bool) {
	root, ok := asMap(resp)
	if !ok {
		return nil, false
	}
	choices, ok := root["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := asMap(choices[0])
	if !ok {
		return nil, false
	}
	return asMap(choice["message"])
}

// parseToolCalls converts the raw tool_calls array into typed calls,
// skipping malformed entries.
func parseToolCalls(raw any) []models.ToolCall {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var calls []models.ToolCall
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		call := models.ToolCall{Type: "function"}
		call.ID, _ = m["id"].(string)
		if fn, ok := asMap(m["function"]); ok {
			call.Function.Name, _ = fn["name"].(string)
			call.Function.Arguments, _ = fn["arguments"].(string)
		}
		if call.Function.Name == "" {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}
