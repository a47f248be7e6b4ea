package models

import (
	"time"
)

// ── Workflow Graph ───────────────────────────────────────────

// Node is a single typed step in a workflow graph. Kind selects the
// handler that evaluates it; Config is opaque to the driver and owned
// by the handler. Position is canvas metadata carried through for the
// editor and the n8n export.
type Node struct {
	ID       string         `json:"id" db:"id"`
	Kind     string         `json:"kind" db:"kind"`
	Label    string         `json:"label" db:"label"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// Position is the node's location on the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes. FromPort and ToPort
// are optional named channels; "tools" is a reserved ToPort that attaches
// a tool node to an agent instead of routing data into it.
type Edge struct {
	ID       string  `json:"id"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	FromPort *string `json:"fromPort,omitempty"`
	ToPort   *string `json:"toPort,omitempty"`
}

type Workflow struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WorkflowInput is the create/update request body for a workflow.
type WorkflowInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// ── Execution ────────────────────────────────────────────────

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionWaiting ExecutionStatus = "waiting"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// NodeResult is the outcome of one node invocation. Results are appended
// in dispatch order and never mutated afterwards.
type NodeResult struct {
	NodeID          string `json:"node_id"`
	NodeName        string `json:"node_name"`
	Success         bool   `json:"success"`
	Output          any    `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// QueueItem is one pending (node, input) pair in the driver's FIFO.
// Only the node id is persisted; nodes are resolved against the workflow
// definition when a snapshot is resumed.
type QueueItem struct {
	NodeID string `json:"node_id"`
	Input  any    `json:"input"`
}

// Snapshot is the serialised continuation of a waiting execution.
// It exists iff the execution status is "waiting" and is cleared on resume.
type Snapshot struct {
	LastOutput     any            `json:"last_output"`
	RemainingQueue []QueueItem    `json:"remaining_queue"`
	WaitInfo       map[string]any `json:"wait_info"`
	CurrentNodeID  string         `json:"current_node_id"`
}

type ExecutionRecord struct {
	ID           string          `json:"id" db:"id"`
	WorkflowID   string          `json:"workflow_id" db:"workflow_id"`
	WorkflowName string          `json:"workflow_name" db:"workflow_name"`
	StartTime    time.Time       `json:"start_time" db:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty" db:"end_time"`
	Status       ExecutionStatus `json:"status" db:"status"`
	Results      []NodeResult    `json:"results"`
	Snapshot     *Snapshot       `json:"snapshot,omitempty"`
}

// ── Credentials ──────────────────────────────────────────────

// Credential stores provider-specific secret material (API key, DB
// connection parts). Data shape is owned by the node handlers.
type Credential struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Provider  string         `json:"provider" db:"provider"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type CredentialInput struct {
	Name     string         `json:"name"`
	Provider string         `json:"provider"`
	Data     map[string]any `json:"data"`
}

// ── MCP Servers ──────────────────────────────────────────────

// McpServer is a registered Model-Context-Protocol tool server.
// Only the streamable-http transport is dialled; other transports are
// registered but expose no tools.
type McpServer struct {
	ID        string            `json:"id" db:"id"`
	Name      string            `json:"name" db:"name"`
	Transport string            `json:"transport" db:"transport"` // streamable-http, sse, stdio
	Endpoint  string            `json:"endpoint,omitempty" db:"endpoint"`
	Command   string            `json:"command,omitempty" db:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       []EnvVar          `json:"env,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	AutoStart bool              `json:"auto_start" db:"auto_start"`
	Status    string            `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// EnvVar is one environment entry for a command-transport MCP server.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type McpServerInput struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       []EnvVar          `json:"env,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	AutoStart bool              `json:"auto_start"`
}

// McpToolInfo describes one tool offered by an MCP server.
type McpToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ── Execution API ────────────────────────────────────────────

// ExecuteWorkflowRequest carries the graph to run. The UI sends the live
// (possibly unsaved) nodes and edges; when both lists are empty the stored
// workflow is loaded by id instead.
type ExecuteWorkflowRequest struct {
	WorkflowID    string `json:"workflow_id"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
	TriggerNodeID string `json:"trigger_node_id,omitempty"`
}

// ExecuteWorkflowResponse is the run envelope. A paused run reports
// success=true with error="Workflow paused"; a failed run reports
// success=false with error="Workflow execution failed".
type ExecuteWorkflowResponse struct {
	Success     bool         `json:"success"`
	ExecutionID string       `json:"execution_id"`
	Results     []NodeResult `json:"results"`
	Error       string       `json:"error,omitempty"`
}

type NodeExecuteRequest struct {
	Node Node `json:"node"`
}

type PostgresTestRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	Database string `json:"database"`
}

// LlmExecuteRequest is the body of the standalone single-prompt endpoints.
type LlmExecuteRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type LlmExecuteResponse struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HttpRequestExecuteRequest proxies one HTTP call for the editor's
// "test step" button. Headers are ordered pairs.
type HttpRequestExecuteRequest struct {
	URL     string      `json:"url"`
	Method  string      `json:"method"`
	Headers [][2]string `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

type HttpRequestExecuteResponse struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code,omitempty"`
	Headers    [][2]string `json:"headers,omitempty"`
	Body       string      `json:"body,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ── LLM Wire Types ───────────────────────────────────────────

// ChatMessage is one turn in an LLM conversation, in the
// OpenAI-compatible shape both supported providers use.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool result messages
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ToolDefinition describes a callable tool advertised to the model.
type ToolDefinition struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
}

// ChatRequest is the provider-agnostic completion request handed to the
// LLM capability. Sampling pointers are forwarded only when set.
type ChatRequest struct {
	Provider         string // "openai" or "openrouter"
	APIKey           string
	Model            string
	Messages         []ChatMessage
	Tools            []ToolDefinition
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// ImageRequest is an image generation request (OpenAI only).
type ImageRequest struct {
	APIKey string
	Prompt string
	Model  string
	Size   string
	N      int
}

// ── n8n Export ───────────────────────────────────────────────

type N8nWorkflowExport struct {
	Name        string         `json:"name"`
	Nodes       []N8nNode      `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings"`
	Active      bool           `json:"active"`
}

type N8nNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion int            `json:"typeVersion"`
	Position    [2]float64     `json:"position"`
	Parameters  map[string]any `json:"parameters"`
}
