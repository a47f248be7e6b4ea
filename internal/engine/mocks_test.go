package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// Test doubles for the capability interfaces. Each fake records what it
// was asked so tests can assert on the interaction.

type fakeStore struct {
	workflows   map[string]*models.Workflow
	credentials map[string]*models.Credential
	mcpServers  map[string]*models.McpServer

	saved   []*models.ExecutionRecord
	updates []models.ExecutionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workflows:   make(map[string]*models.Workflow),
		credentials: make(map[string]*models.Credential),
		mcpServers:  make(map[string]*models.McpServer),
	}
}

func (s *fakeStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", id)
	}
	return wf, nil
}

func (s *fakeStore) GetCredential(_ context.Context, id string) (*models.Credential, error) {
	cred, ok := s.credentials[id]
	if !ok {
		return nil, fmt.Errorf("credential not found: %s", id)
	}
	return cred, nil
}

func (s *fakeStore) GetMcpServer(_ context.Context, id string) (*models.McpServer, error) {
	server, ok := s.mcpServers[id]
	if !ok {
		return nil, fmt.Errorf("mcp server not found: %s", id)
	}
	return server, nil
}

func (s *fakeStore) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	s.saved = append(s.saved, record)
	return nil
}

func (s *fakeStore) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	s.updates = append(s.updates, *record)
	return nil
}

func (s *fakeStore) FindWaitingExecutionByWaitTs(_ context.Context, ts string) (*models.ExecutionRecord, error) {
	return nil, fmt.Errorf("execution not found: %s", ts)
}

// lastUpdate returns the most recently persisted record state.
func (s *fakeStore) lastUpdate() *models.ExecutionRecord {
	if len(s.updates) == 0 {
		return nil
	}
	return &s.updates[len(s.updates)-1]
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) NowUTC() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

type fakeLLM struct {
	requests  []*models.ChatRequest
	responses []any
	err       error
}

func (l *fakeLLM) ChatCompletion(_ context.Context, req *models.ChatRequest) (any, error) {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	if len(l.responses) == 0 {
		return map[string]any{}, nil
	}
	resp := l.responses[0]
	if len(l.responses) > 1 {
		l.responses = l.responses[1:]
	}
	return resp, nil
}

func (l *fakeLLM) GenerateImage(_ context.Context, _ *models.ImageRequest) (any, error) {
	return nil, fmt.Errorf("not supported")
}

type fakeHTTP struct {
	do func(ctx context.Context, req *HttpRequest) (*HttpResponse, error)
}

func (h *fakeHTTP) Do(ctx context.Context, req *HttpRequest) (*HttpResponse, error) {
	return h.do(ctx, req)
}

type fakeMCP struct {
	listTools func(ctx context.Context, server *models.McpServer) ([]models.McpToolInfo, error)
	callTool  func(ctx context.Context, server *models.McpServer, name string, args map[string]any) (any, error)
}

func (m *fakeMCP) ListTools(ctx context.Context, server *models.McpServer) ([]models.McpToolInfo, error) {
	return m.listTools(ctx, server)
}

func (m *fakeMCP) CallTool(ctx context.Context, server *models.McpServer, name string, args map[string]any) (any, error) {
	return m.callTool(ctx, server, name, args)
}

type fakeFeeds struct {
	feed *Feed
	err  error
}

func (f *fakeFeeds) Parse(_ []byte) (*Feed, error) {
	return f.feed, f.err
}

func strPtr(s string) *string { return &s }
