package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weftworks/weft/pkg/models"
)

// n8nNodeTypes maps weft node kinds onto their closest n8n builtin.
// Anything without a counterpart exports as a no-op so the graph shape
// survives the import.
var n8nNodeTypes = map[string]string{
	"trigger-start":    "n8n-nodes-base.manualTrigger",
	"trigger-schedule": "n8n-nodes-base.scheduleTrigger",
	"trigger-webhook":  "n8n-nodes-base.webhook",
	"http-request":     "n8n-nodes-base.httpRequest",
	"code":             "n8n-nodes-base.code",
	"set":              "n8n-nodes-base.set",
	"if":               "n8n-nodes-base.if",
	"switch":           "n8n-nodes-base.switch",
	"merge":            "n8n-nodes-base.merge",
	"filter":           "n8n-nodes-base.filter",
	"trigger-end":      "n8n-nodes-base.noOp",
}

// ExportWorkflowN8n renders a stored workflow in n8n's import format.
func (h *Handlers) ExportWorkflowN8n(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Store.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondNotFoundOrError(w, err)
		return
	}

	labels := make(map[string]string, len(wf.Nodes))
	nodes := make([]models.N8nNode, 0, len(wf.Nodes))
	for _, node := range wf.Nodes {
		labels[node.ID] = node.Label

		nodeType, ok := n8nNodeTypes[node.Kind]
		if !ok {
			nodeType = "n8n-nodes-base.noOp"
		}
		params := node.Config
		if params == nil {
			params = map[string]any{}
		}
		nodes = append(nodes, models.N8nNode{
			ID:          node.ID,
			Name:        node.Label,
			Type:        nodeType,
			TypeVersion: 1,
			Position:    [2]float64{node.Position.X, node.Position.Y},
			Parameters:  params,
		})
	}

	// n8n keys connections by the source node's display name.
	connections := map[string]any{}
	for _, edge := range wf.Edges {
		source, ok := labels[edge.From]
		if !ok {
			continue
		}
		target, ok := labels[edge.To]
		if !ok {
			continue
		}
		entry, _ := connections[source].(map[string]any)
		if entry == nil {
			entry = map[string]any{"main": []any{[]any{}}}
			connections[source] = entry
		}
		main := entry["main"].([]any)
		main[0] = append(main[0].([]any), map[string]any{
			"node":  target,
			"type":  "main",
			"index": 0,
		})
	}

	respondJSON(w, http.StatusOK, models.N8nWorkflowExport{
		Name:        wf.Name,
		Nodes:       nodes,
		Connections: connections,
		Settings:    map[string]any{},
		Active:      false,
	})
}

// ExportCurrentWorkflowN8n would export the editor's unsaved canvas; the
// UI does not send it yet.
func (h *Handlers) ExportCurrentWorkflowN8n(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotImplemented, "Export of unsaved workflows is not implemented")
}
