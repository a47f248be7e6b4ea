// Package store provides the storage interface and implementations for the
// weft engine: workflows, credentials, MCP server registry, and execution
// records. An in-memory implementation backs local dev and tests; PostgreSQL
// backs production.
package store

import (
	"context"

	"github.com/weftworks/weft/pkg/models"
)

// Store is the primary storage interface. All handler and engine code
// depends on this interface, making it easy to swap between in-memory
// (tests) and PostgreSQL (production) implementations.
type Store interface {
	WorkflowStore
	CredentialStore
	McpServerStore
	ExecutionStore

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates the schema when it does not exist yet.
	Migrate(ctx context.Context) error
}

// ── Workflow Store ──────────────────────────────────────────

type WorkflowStore interface {
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ── Credential Store ────────────────────────────────────────

type CredentialStore interface {
	ListCredentials(ctx context.Context) ([]models.Credential, error)
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	CreateCredential(ctx context.Context, cred *models.Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// ── MCP Server Store ────────────────────────────────────────

type McpServerStore interface {
	ListMcpServers(ctx context.Context) ([]models.McpServer, error)
	GetMcpServer(ctx context.Context, id string) (*models.McpServer, error)
	CreateMcpServer(ctx context.Context, server *models.McpServer) error
	DeleteMcpServer(ctx context.Context, id string) error
}

// ── Execution Store ─────────────────────────────────────────

type ExecutionStore interface {
	// ListExecutions returns the most recent records, newest first.
	ListExecutions(ctx context.Context, limit int) ([]models.ExecutionRecord, error)

	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)

	// SaveExecution persists a new record (status=running at run start).
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error

	// UpdateExecution rewrites status, results, end time and snapshot for
	// an existing record. A nil snapshot clears the stored one.
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error

	// FindWaitingExecutionByWaitTs locates the single waiting record whose
	// snapshot wait_info.ts equals ts. Used by the Slack resume webhook.
	// Returns ErrNotFound when no execution is waiting on that message.
	FindWaitingExecutionByWaitTs(ctx context.Context, ts string) (*models.ExecutionRecord, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
