package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// The engine consumes narrow capability interfaces so hosts can wire real
// clients in production and tests can substitute mocks. Handlers must not
// retain capability handles past return.

// Store is the subset of persistence the engine needs: credential and MCP
// server lookup for handlers, workflow lookup for resume, and execution
// record writes for the driver.
type Store interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	GetMcpServer(ctx context.Context, id string) (*models.McpServer, error)
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error
	FindWaitingExecutionByWaitTs(ctx context.Context, ts string) (*models.ExecutionRecord, error)
}

// HttpRequest is one outbound HTTP call. Headers are ordered pairs.
type HttpRequest struct {
	Method  string
	URL     string
	Headers [][2]string
	Basic   *BasicAuth
	Body    []byte
}

type BasicAuth struct {
	User     string
	Password string
}

type HttpResponse struct {
	StatusCode int
	Headers    [][2]string
	Body       []byte
}

// HttpClient performs outbound HTTP for the http-request and rss-feed-read
// handlers.
type HttpClient interface {
	Do(ctx context.Context, req *HttpRequest) (*HttpResponse, error)
}

// LlmClient talks to the OpenAI-compatible chat providers. ChatCompletion
// returns the raw provider response decoded as dynamic JSON; node outputs
// pass it through unchanged and the agent loop digs tool_calls out of it.
type LlmClient interface {
	ChatCompletion(ctx context.Context, req *models.ChatRequest) (any, error)
	GenerateImage(ctx context.Context, req *models.ImageRequest) (any, error)
}

// McpClient lists and invokes tools on a registered MCP server. Only the
// streamable-http transport is dialled; other transports report no tools.
// Clients are constructed per call and rely on the server for idempotency.
type McpClient interface {
	ListTools(ctx context.Context, server *models.McpServer) ([]models.McpToolInfo, error)
	CallTool(ctx context.Context, server *models.McpServer, name string, args map[string]any) (any, error)
}

// CodeRunner executes untrusted user code against an input value and
// returns the JSON result. Implementations own the wrapping convention
// (JS async IIFE with $input helpers; Python def main(data) body).
type CodeRunner interface {
	Run(ctx context.Context, code string, input any) (any, error)
}

// SlackClient covers the Slack Web API surface the slack handler uses.
// The token is passed per call because it is resolved from a credential
// at execution time. Responses are dynamic JSON in the shape of the
// Slack API envelope (ok, channel, ts, ...).
type SlackClient interface {
	PostMessage(ctx context.Context, token, channel, text string, blocks []any) (map[string]any, error)
	PostEphemeral(ctx context.Context, token, channel, user, text string) (map[string]any, error)
	UpdateMessage(ctx context.Context, token, channel, ts, text string) (map[string]any, error)
	DeleteMessage(ctx context.Context, token, channel, ts string) (map[string]any, error)
	SearchMessages(ctx context.Context, token, query string) (map[string]any, error)
	CreateChannel(ctx context.Context, token, name string, private bool) (map[string]any, error)
	ArchiveChannel(ctx context.Context, token, channel string) (map[string]any, error)
	InviteToChannel(ctx context.Context, token, channel string, users []string) (map[string]any, error)
	ListChannels(ctx context.Context, token string) (map[string]any, error)
	UserInfo(ctx context.Context, token, user string) (map[string]any, error)
	ListUsers(ctx context.Context, token string) (map[string]any, error)
}

// Clock abstracts time so the wait handler is testable and cancellable.
type Clock interface {
	NowUTC() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Feed is a parsed syndication feed, provider-neutral.
type Feed struct {
	Items []FeedItem
}

// FeedItem carries the fields the rss handlers expose. Timestamps are
// RFC 3339 strings when the source provides them, empty otherwise.
type FeedItem struct {
	ID        string
	Title     string
	Link      string
	Summary   string
	Content   string
	Published string
	Updated   string
	Author    string
}

// FeedParser parses raw feed bytes (RSS/Atom).
type FeedParser interface {
	Parse(data []byte) (*Feed, error)
}

// FileEntry is one file matched by a read glob.
type FileEntry struct {
	Path string
	Data []byte
}

// FileIO abstracts the filesystem for the read-write-file handler.
type FileIO interface {
	ReadGlob(pattern string) ([]FileEntry, error)
	WriteFile(path string, data []byte, append bool) error
}

// Capabilities bundles every external interface the engine consumes.
// Hosts wire real implementations; tests fill in only what a case needs.
type Capabilities struct {
	Store  Store
	HTTP   HttpClient
	LLM    LlmClient
	MCP    McpClient
	JS     CodeRunner
	Python CodeRunner
	Slack  SlackClient
	Clock  Clock
	Feeds  FeedParser
	Files  FileIO
}

// Context is handed to every handler invocation: the capability set plus
// the graph of the execution in flight (the agent loop walks edges to
// find its attached tool nodes).
type Context struct {
	Capabilities

	Nodes []models.Node
	Edges []models.Edge
}

// ResolveAPIKey returns the secret for a handler: the api_key field of
// the credential referenced by config.credentialId when set, else the
// named environment variable. Missing both is an error.
func ResolveAPIKey(ctx context.Context, ec *Context, node *models.Node, envVar string) (string, error) {
	if credID, ok := node.Config["credentialId"].(string); ok && credID != "" {
		cred, err := ec.Store.GetCredential(ctx, credID)
		if err == nil && cred != nil {
			key, ok := cred.Data["api_key"].(string)
			if !ok || key == "" {
				return "", fmt.Errorf("API key not found in credential")
			}
			return key, nil
		}
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not set", envVar)
}
