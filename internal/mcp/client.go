// Package mcp implements the engine's McpClient capability on the
// Model-Context-Protocol streamable-http transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpspec "github.com/mark3labs/mcp-go/mcp"

	"github.com/weftworks/weft/pkg/models"
)

// Client dials a server per call and tears the session down on return.
// Sessions are not pooled; tool servers own idempotency.
type Client struct{}

func New() *Client {
	return &Client{}
}

// ListTools returns the server's tool catalogue. Transports other than
// streamable-http are registered but not dialled, so they report no
// tools rather than an error.
func (c *Client) ListTools(ctx context.Context, server *models.McpServer) ([]models.McpToolInfo, error) {
	if server.Transport != "streamable-http" || server.Endpoint == "" {
		return nil, nil
	}

	session, err := c.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	result, err := session.ListTools(ctx, mcpspec.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on '%s': %w", server.Name, err)
	}

	tools := make([]models.McpToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, models.McpToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	return tools, nil
}

// CallTool invokes one tool and decodes the text content of the result.
func (c *Client) CallTool(ctx context.Context, server *models.McpServer, name string, args map[string]any) (any, error) {
	if server.Transport != "streamable-http" || server.Endpoint == "" {
		return nil, fmt.Errorf("MCP server '%s' has no callable transport", server.Name)
	}

	session, err := c.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	req := mcpspec.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := session.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool '%s': %w", name, err)
	}

	text := collectText(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("%s", text)
	}

	// Tool output is a JSON value more often than prose.
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}
	return text, nil
}

func (c *Client) connect(ctx context.Context, server *models.McpServer) (*mcpclient.Client, error) {
	var opts []transport.StreamableHTTPCOption
	if len(server.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(server.Headers))
	}

	session, err := mcpclient.NewStreamableHttpClient(server.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial MCP server '%s': %w", server.Name, err)
	}
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("start MCP session '%s': %w", server.Name, err)
	}

	initReq := mcpspec.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpspec.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpspec.Implementation{
		Name:    "weft",
		Version: "1.0.0",
	}
	if _, err := session.Initialize(ctx, initReq); err != nil {
		session.Close()
		return nil, fmt.Errorf("initialize MCP session '%s': %w", server.Name, err)
	}
	return session, nil
}

func schemaToMap(schema mcpspec.ToolInputSchema) map[string]any {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func collectText(content []mcpspec.Content) string {
	var out string
	for _, c := range content {
		if tc, ok := c.(mcpspec.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
