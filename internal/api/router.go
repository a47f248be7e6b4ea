package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/weftworks/weft/internal/api/handlers"
	"github.com/weftworks/weft/internal/api/middleware"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", h.ListWorkflows)
			r.Post("/", h.CreateWorkflow)
			r.Post("/execute", h.ExecuteWorkflow)
			r.Get("/current/export/n8n", h.ExportCurrentWorkflowN8n)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetWorkflow)
				r.Put("/", h.UpdateWorkflow)
				r.Delete("/", h.DeleteWorkflow)
				r.Get("/export/n8n", h.ExportWorkflowN8n)
			})
		})

		r.Post("/nodes/execute", h.ExecuteNode)

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", h.ListExecutions)
			r.Get("/{id}", h.GetExecution)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", h.ListCredentials)
			r.Post("/", h.CreateCredential)
			r.Delete("/{id}", h.DeleteCredential)
			r.Post("/test/postgres", h.TestPostgresConnection)
		})

		r.Route("/mcp/servers", func(r chi.Router) {
			r.Get("/", h.ListMcpServers)
			r.Post("/", h.CreateMcpServer)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", h.DeleteMcpServer)
				r.Get("/tools", h.ListMcpTools)
				r.Get("/status", h.CheckMcpServerStatus)
			})
		})

		r.Post("/llm/execute", h.ExecuteLlm)
		r.Post("/openai/execute", h.ExecuteOpenAI)
		r.Post("/chat/trigger", h.ChatTrigger)
		r.Post("/http-request/execute", h.ExecuteHttpRequest)

		r.Post("/webhooks/slack/interactive", h.HandleSlackInteractive)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "weft-engine",
	})
}
