// Package store — PostgreSQL Store implementation.
// Backs production deployments. Connection URL is read from WEFT_DATABASE_URL;
// when unset the server falls back to the in-memory store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/weftworks/weft/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
// Graph definitions, credential data and execution snapshots are stored
// as JSONB so the engine can round-trip them without a relational mapping.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
// Call Migrate before serving traffic.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS workflows (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			nodes       JSONB NOT NULL DEFAULT '[]',
			edges       JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS credentials (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			provider   TEXT NOT NULL,
			data       JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS mcp_servers (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			transport  TEXT NOT NULL DEFAULT 'streamable-http',
			endpoint   TEXT NOT NULL DEFAULT '',
			command    TEXT NOT NULL DEFAULT '',
			args       JSONB NOT NULL DEFAULT '[]',
			env        JSONB NOT NULL DEFAULT '{}',
			headers    JSONB NOT NULL DEFAULT '{}',
			auto_start BOOLEAN NOT NULL DEFAULT FALSE,
			status     TEXT NOT NULL DEFAULT 'unknown',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS executions (
			id            TEXT PRIMARY KEY,
			workflow_id   TEXT NOT NULL DEFAULT '',
			workflow_name TEXT NOT NULL DEFAULT '',
			start_time    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_time      TIMESTAMPTZ,
			status        TEXT NOT NULL,
			results       JSONB NOT NULL DEFAULT '[]',
			snapshot      JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_executions_start ON executions (start_time DESC);
		CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
	`
	_, err := s.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// ── Workflow Store ──────────────────────────────────────────

func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, nodes, edges, created_at, updated_at
		FROM workflows ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	result := []models.Workflow{}
	for rows.Next() {
		var wf models.Workflow
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Nodes, &wf.Edges, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, nodes, edges, created_at, updated_at
		FROM workflows WHERE id = $1`, id).
		Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Nodes, &wf.Edges, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "workflow", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &wf, nil
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflows (id, name, description, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wf.ID, wf.Name, wf.Description, wf.Nodes, wf.Edges, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows SET name = $2, description = $3, nodes = $4, edges = $5, updated_at = NOW()
		WHERE id = $1`,
		wf.ID, wf.Name, wf.Description, wf.Nodes, wf.Edges)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "workflow", Key: wf.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "workflow", Key: id}
	}
	return nil
}

// ── Credential Store ────────────────────────────────────────

func (s *PostgresStore) ListCredentials(ctx context.Context) ([]models.Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, provider, data, created_at
		FROM credentials ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	result := []models.Credential{}
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.ID, &c.Name, &c.Provider, &c.Data, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, provider, data, created_at
		FROM credentials WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Provider, &c.Data, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "credential", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (id, name, provider, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cred.ID, cred.Name, cred.Provider, cred.Data, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "credential", Key: id}
	}
	return nil
}

// ── MCP Server Store ────────────────────────────────────────

func (s *PostgresStore) ListMcpServers(ctx context.Context) ([]models.McpServer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, transport, endpoint, command, args, env, headers, auto_start, status, created_at
		FROM mcp_servers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}
	defer rows.Close()

	result := []models.McpServer{}
	for rows.Next() {
		var srv models.McpServer
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Transport, &srv.Endpoint, &srv.Command,
			&srv.Args, &srv.Env, &srv.Headers, &srv.AutoStart, &srv.Status, &srv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mcp server: %w", err)
		}
		result = append(result, srv)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetMcpServer(ctx context.Context, id string) (*models.McpServer, error) {
	var srv models.McpServer
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, transport, endpoint, command, args, env, headers, auto_start, status, created_at
		FROM mcp_servers WHERE id = $1`, id).
		Scan(&srv.ID, &srv.Name, &srv.Transport, &srv.Endpoint, &srv.Command,
			&srv.Args, &srv.Env, &srv.Headers, &srv.AutoStart, &srv.Status, &srv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "mcp_server", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mcp server: %w", err)
	}
	return &srv, nil
}

func (s *PostgresStore) CreateMcpServer(ctx context.Context, server *models.McpServer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mcp_servers (id, name, transport, endpoint, command, args, env, headers, auto_start, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		server.ID, server.Name, server.Transport, server.Endpoint, server.Command,
		server.Args, server.Env, server.Headers, server.AutoStart, server.Status, server.CreatedAt)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMcpServer(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mcp_servers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mcp server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "mcp_server", Key: id}
	}
	return nil
}

// ── Execution Store ─────────────────────────────────────────

func (s *PostgresStore) ListExecutions(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, workflow_name, start_time, end_time, status, results, snapshot
		FROM executions ORDER BY start_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	result := []models.ExecutionRecord{}
	for rows.Next() {
		var rec models.ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.WorkflowName, &rec.StartTime,
			&rec.EndTime, &rec.Status, &rec.Results, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, workflow_name, start_time, end_time, status, results, snapshot
		FROM executions WHERE id = $1`, id).
		Scan(&rec.ID, &rec.WorkflowID, &rec.WorkflowName, &rec.StartTime,
			&rec.EndTime, &rec.Status, &rec.Results, &rec.Snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, workflow_id, workflow_name, start_time, end_time, status, results, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.WorkflowID, record.WorkflowName, record.StartTime,
		record.EndTime, record.Status, record.Results, record.Snapshot)
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET status = $2, results = $3, end_time = $4, snapshot = $5
		WHERE id = $1`,
		record.ID, record.Status, record.Results, record.EndTime, record.Snapshot)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "execution", Key: record.ID}
	}
	return nil
}

func (s *PostgresStore) FindWaitingExecutionByWaitTs(ctx context.Context, ts string) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, workflow_name, start_time, end_time, status, results, snapshot
		FROM executions
		WHERE status = 'waiting' AND snapshot->'wait_info'->>'ts' = $1
		ORDER BY start_time DESC LIMIT 1`, ts).
		Scan(&rec.ID, &rec.WorkflowID, &rec.WorkflowName, &rec.StartTime,
			&rec.EndTime, &rec.Status, &rec.Results, &rec.Snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "execution", Key: ts}
	}
	if err != nil {
		return nil, fmt.Errorf("find waiting execution: %w", err)
	}
	return &rec, nil
}

// TestConnection opens a short-lived single-connection pool against the given
// URL and pings it. Used by the credential test endpoint; never pools.
func TestConnection(ctx context.Context, connURL string) error {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	cfg.MaxConns = 1

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	return pool.Ping(ctx)
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
