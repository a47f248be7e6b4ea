// Package handlers implements the HTTP handlers for the weft engine API:
// workflow CRUD and execution, execution history, credentials, MCP server
// registry, standalone node testing, and the Slack interactivity webhook
// that resumes paused executions.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/weftworks/weft/internal/engine"
	"github.com/weftworks/weft/internal/store"
	"github.com/weftworks/weft/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store  store.Store
	Driver *engine.Driver
	LLM    engine.LlmClient
	MCP    engine.McpClient
	HTTP   engine.HttpClient
	Clock  engine.Clock
}

// New creates a Handlers instance wired to the store and the engine's
// capability set.
func New(s store.Store, driver *engine.Driver, caps engine.Capabilities) *Handlers {
	return &Handlers{
		Store:  s,
		Driver: driver,
		LLM:    caps.LLM,
		MCP:    caps.MCP,
		HTTP:   caps.HTTP,
		Clock:  caps.Clock,
	}
}

// ── Workflow Handlers ────────────────────────────────────────

func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.Store.ListWorkflows(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if workflows == nil {
		workflows = []models.Workflow{}
	}
	respondJSON(w, http.StatusOK, workflows)
}

func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var input models.WorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := h.Clock.NowUTC()
	wf := models.Workflow{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		Nodes:       input.Nodes,
		Edges:       input.Edges,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Store.CreateWorkflow(r.Context(), &wf); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Store.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input models.WorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	existing, err := h.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, err)
		return
	}

	existing.Name = input.Name
	existing.Description = input.Description
	existing.Nodes = input.Nodes
	existing.Edges = input.Edges
	existing.UpdatedAt = h.Clock.NowUTC()

	if err := h.Store.UpdateWorkflow(r.Context(), existing); err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteWorkflow(r.Context(), id); err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ── Execution Handlers ───────────────────────────────────────

func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, h.Driver.Execute(r.Context(), &req))
}

func (h *Handlers) ExecuteNode(w http.ResponseWriter, r *http.Request) {
	var req models.NodeExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, h.Driver.ExecuteNode(r.Context(), &req.Node))
}

func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := h.Store.ListExecutions(r.Context(), 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if executions == nil {
		executions = []models.ExecutionRecord{}
	}
	respondJSON(w, http.StatusOK, executions)
}

func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	record, err := h.Store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// ── Credential Handlers ──────────────────────────────────────

func (h *Handlers) ListCredentials(w http.ResponseWriter, r *http.Request) {
	credentials, err := h.Store.ListCredentials(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if credentials == nil {
		credentials = []models.Credential{}
	}
	respondJSON(w, http.StatusOK, credentials)
}

func (h *Handlers) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var input models.CredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cred := models.Credential{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Provider:  input.Provider,
		Data:      input.Data,
		CreatedAt: h.Clock.NowUTC(),
	}
	if err := h.Store.CreateCredential(r.Context(), &cred); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cred)
}

func (h *Handlers) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteCredential(r.Context(), id); err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// TestPostgresConnection attempts a short-lived connection with the
// submitted parameters. Failure is a normal response, not an HTTP error.
func (h *Handlers) TestPostgresConnection(w http.ResponseWriter, r *http.Request) {
	var req models.PostgresTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", req.User, req.Password, req.Host, req.Port, req.Database)
	if err := store.TestConnection(r.Context(), url); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Connection successful"})
}

// ── MCP Server Handlers ──────────────────────────────────────

func (h *Handlers) ListMcpServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.Store.ListMcpServers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if servers == nil {
		servers = []models.McpServer{}
	}
	respondJSON(w, http.StatusOK, servers)
}

func (h *Handlers) CreateMcpServer(w http.ResponseWriter, r *http.Request) {
	var input models.McpServerInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	server := models.McpServer{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Transport: input.Transport,
		Endpoint:  input.Endpoint,
		Command:   input.Command,
		Args:      input.Args,
		Env:       input.Env,
		Headers:   input.Headers,
		AutoStart: input.AutoStart,
		Status:    "disconnected",
		CreatedAt: h.Clock.NowUTC(),
	}
	if err := h.Store.CreateMcpServer(r.Context(), &server); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, server)
}

func (h *Handlers) DeleteMcpServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteMcpServer(r.Context(), id); err != nil {
		respondNotFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// CheckMcpServerStatus dials the server and reports reachability plus
// its tool catalogue.
func (h *Handlers) CheckMcpServerStatus(w http.ResponseWriter, r *http.Request) {
	server, err := h.Store.GetMcpServer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondNotFoundOrError(w, err)
		return
	}

	if server.Transport != "streamable-http" || server.Endpoint == "" {
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "unsupported_transport",
			"tools":  []any{},
		})
		return
	}

	tools, err := h.MCP.ListTools(r.Context(), server)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	if tools == nil {
		tools = []models.McpToolInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "connected", "tools": tools})
}

// ListMcpTools shares the status handler's probe; the catalogue is not
// cached server-side.
func (h *Handlers) ListMcpTools(w http.ResponseWriter, r *http.Request) {
	h.CheckMcpServerStatus(w, r)
}

// ── Standalone Execution Handlers ────────────────────────────

func (h *Handlers) ExecuteLlm(w http.ResponseWriter, r *http.Request) {
	h.executePrompt(w, r, "openrouter", "OPENROUTER_API_KEY", "OpenRouter")
}

func (h *Handlers) ExecuteOpenAI(w http.ResponseWriter, r *http.Request) {
	h.executePrompt(w, r, "openai", "OPENAI_API_KEY", "OpenAI")
}

func (h *Handlers) executePrompt(w http.ResponseWriter, r *http.Request, provider, envVar, label string) {
	var req models.LlmExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		respondJSON(w, http.StatusOK, models.LlmExecuteResponse{
			Success: false,
			Error:   label + " API key not configured",
		})
		return
	}

	output, err := h.LLM.ChatCompletion(r.Context(), &models.ChatRequest{
		Provider: provider,
		APIKey:   apiKey,
		Model:    req.Model,
		Messages: []models.ChatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		respondJSON(w, http.StatusOK, models.LlmExecuteResponse{
			Success: false,
			Error:   fmt.Sprintf("%s API error: %s", label, err),
		})
		return
	}
	respondJSON(w, http.StatusOK, models.LlmExecuteResponse{Success: true, Output: output})
}

func (h *Handlers) ChatTrigger(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "chat triggered"})
}

// ExecuteHttpRequest proxies one HTTP call for the editor's test button.
func (h *Handlers) ExecuteHttpRequest(w http.ResponseWriter, r *http.Request) {
	var req models.HttpRequestExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	method := req.Method
	if method == "" {
		method = "GET"
	}

	resp, err := h.HTTP.Do(r.Context(), &engine.HttpRequest{
		Method:  method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    []byte(req.Body),
	})
	if err != nil {
		respondJSON(w, http.StatusOK, models.HttpRequestExecuteResponse{Success: false, Error: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, models.HttpRequestExecuteResponse{
		Success:    true,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       string(resp.Body),
	})
}

// ── Slack Interactivity Webhook ──────────────────────────────

// HandleSlackInteractive resumes the execution waiting on the message the
// user acted on. Slack posts the interaction as a JSON string in the
// "payload" form field. The webhook always acks 200 so Slack does not
// retry; resume failures surface in the execution record.
func (h *Handlers) HandleSlackInteractive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form payload")
		return
	}
	payloadStr := r.FormValue("payload")
	if payloadStr == "" {
		respondError(w, http.StatusBadRequest, "Missing payload")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload JSON")
		return
	}

	ts := digString(payload, "container", "message_ts")
	action := digString(payload, "actions", "0", "action_id")
	if ts == "" || action == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	record, err := h.Store.FindWaitingExecutionByWaitTs(r.Context(), ts)
	if err != nil {
		var notFound *store.ErrNotFound
		if !errors.As(err, &notFound) {
			log.Error().Err(err).Str("ts", ts).Msg("Slack webhook lookup failed")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	resumeInput := map[string]any{
		"action":    action,
		"user":      digString(payload, "user", "username"),
		"timestamp": h.Clock.NowUTC().Format(time.RFC3339),
	}
	h.Driver.Resume(r.Context(), record, resumeInput)

	w.WriteHeader(http.StatusOK)
}

// digString walks nested maps (and arrays by numeric key) to a string
// leaf, returning "" when any step is missing.
func digString(v any, path ...string) string {
	cur := v
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			if key == "0" && len(node) > 0 {
				cur = node[0]
			} else {
				return ""
			}
		default:
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondNotFoundOrError(w http.ResponseWriter, err error) {
	var notFound *store.ErrNotFound
	if errors.As(err, &notFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
