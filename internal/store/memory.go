// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/weftworks/weft/pkg/models"
)

// fileSnapshot is the JSON-serializable shape written to disk.
type fileSnapshot struct {
	Workflows   map[string]*models.Workflow        `json:"workflows"`
	Credentials map[string]*models.Credential      `json:"credentials"`
	McpServers  map[string]*models.McpServer       `json:"mcp_servers"`
	Executions  map[string]*models.ExecutionRecord `json:"executions"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]*models.Workflow        // key: id
	credentials map[string]*models.Credential      // key: id
	mcpServers  map[string]*models.McpServer       // key: id
	executions  map[string]*models.ExecutionRecord // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop

	// Execution TTL — finished execution records older than this are
	// evicted automatically. Waiting records are never evicted so a
	// pending resume cannot lose its snapshot. Defaults to 7 days.
	// Set via WEFT_EXECUTION_TTL env var (Go duration string).
	executionTTL time.Duration
}

// NewMemoryStore creates a new in-memory store.
// If WEFT_DATA_DIR is set, data is persisted to a JSON file in that directory.
// Otherwise defaults to ~/.weft/data.json.
func NewMemoryStore() *MemoryStore {
	executionTTL := 7 * 24 * time.Hour
	if ttlStr := os.Getenv("WEFT_EXECUTION_TTL"); ttlStr != "" {
		if parsed, err := time.ParseDuration(ttlStr); err == nil {
			executionTTL = parsed
		} else {
			log.Warn().Str("value", ttlStr).Msg("Invalid WEFT_EXECUTION_TTL, using default 7d")
		}
	}

	m := &MemoryStore{
		workflows:    make(map[string]*models.Workflow),
		credentials:  make(map[string]*models.Credential),
		mcpServers:   make(map[string]*models.McpServer),
		executions:   make(map[string]*models.ExecutionRecord),
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		executionTTL: executionTTL,
	}

	// Determine snapshot path
	dataDir := os.Getenv("WEFT_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".weft")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		// Ensure directory exists
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	// Load existing data from disk
	if m.snapshotPath != "" {
		m.loadSnapshot()
	}

	// Start background save goroutine (debounced)
	if m.snapshotPath != "" {
		go m.saveLoop()
	}

	// Start execution TTL eviction goroutine (runs every 10 minutes)
	go m.executionEvictionLoop()

	log.Info().
		Str("execution_ttl", executionTTL.String()).
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// executionEvictionLoop periodically removes finished executions older than executionTTL.
func (m *MemoryStore) executionEvictionLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.doneCh:
			return
		case <-ticker.C:
			m.evictExpiredExecutions()
		}
	}
}

// evictExpiredExecutions removes finished executions older than the configured TTL.
// Waiting executions hold resume snapshots and are kept regardless of age.
func (m *MemoryStore) evictExpiredExecutions() {
	cutoff := time.Now().Add(-m.executionTTL)

	m.mu.Lock()
	var evicted int
	for id, rec := range m.executions {
		if rec.Status == models.ExecutionWaiting {
			continue
		}
		if rec.StartTime.Before(cutoff) {
			delete(m.executions, id)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Str("ttl", m.executionTTL.String()).Msg("Evicted expired executions")
		m.requestSave()
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := fileSnapshot{
		Workflows:   m.workflows,
		Credentials: m.credentials,
		McpServers:  m.mcpServers,
		Executions:  m.executions,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Workflows != nil {
		m.workflows = snap.Workflows
	}
	if snap.Credentials != nil {
		m.credentials = snap.Credentials
	}
	if snap.McpServers != nil {
		m.mcpServers = snap.McpServers
	}
	if snap.Executions != nil {
		m.executions = snap.Executions
	}

	log.Info().
		Int("workflows", len(m.workflows)).
		Int("credentials", len(m.credentials)).
		Int("mcp_servers", len(m.mcpServers)).
		Int("executions", len(m.executions)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	// Signal all background goroutines to stop
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	// Force a final snapshot write so no in-flight data is lost
	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Workflow Store ──────────────────────────────────────────

func (m *MemoryStore) ListWorkflows(_ context.Context) ([]models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		result = append(result, *wf)
	}
	// Most recently updated first, matching the PostgreSQL ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "workflow", Key: id}
	}
	copy := *wf
	return &copy, nil
}

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	copy := *wf
	m.workflows[wf.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateWorkflow(_ context.Context, wf *models.Workflow) error {
	m.mu.Lock()
	if _, ok := m.workflows[wf.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "workflow", Key: wf.ID}
	}
	copy := *wf
	copy.UpdatedAt = time.Now().UTC()
	m.workflows[wf.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.workflows[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "workflow", Key: id}
	}
	delete(m.workflows, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Credential Store ────────────────────────────────────────

func (m *MemoryStore) ListCredentials(_ context.Context) ([]models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Credential, 0, len(m.credentials))
	for _, c := range m.credentials {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) GetCredential(_ context.Context, id string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "credential", Key: id}
	}
	copy := *c
	return &copy, nil
}

func (m *MemoryStore) CreateCredential(_ context.Context, cred *models.Credential) error {
	m.mu.Lock()
	copy := *cred
	m.credentials[cred.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.credentials[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "credential", Key: id}
	}
	delete(m.credentials, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── MCP Server Store ────────────────────────────────────────

func (m *MemoryStore) ListMcpServers(_ context.Context) ([]models.McpServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.McpServer, 0, len(m.mcpServers))
	for _, s := range m.mcpServers {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) GetMcpServer(_ context.Context, id string) (*models.McpServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.mcpServers[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "mcp_server", Key: id}
	}
	copy := *s
	return &copy, nil
}

func (m *MemoryStore) CreateMcpServer(_ context.Context, server *models.McpServer) error {
	m.mu.Lock()
	copy := *server
	m.mcpServers[server.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteMcpServer(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.mcpServers[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "mcp_server", Key: id}
	}
	delete(m.mcpServers, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Execution Store ─────────────────────────────────────────

func (m *MemoryStore) ListExecutions(_ context.Context, limit int) ([]models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.ExecutionRecord, 0, len(m.executions))
	for _, rec := range m.executions {
		result = append(result, *rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	copy := *rec
	return &copy, nil
}

func (m *MemoryStore) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	m.mu.Lock()
	copy := *record
	m.executions[record.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	m.mu.Lock()
	if _, ok := m.executions[record.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "execution", Key: record.ID}
	}
	copy := *record
	m.executions[record.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) FindWaitingExecutionByWaitTs(_ context.Context, ts string) (*models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.executions {
		if rec.Status != models.ExecutionWaiting || rec.Snapshot == nil {
			continue
		}
		if got, ok := rec.Snapshot.WaitInfo["ts"].(string); ok && got == ts {
			copy := *rec
			return &copy, nil
		}
	}
	return nil, &ErrNotFound{Entity: "execution", Key: ts}
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
