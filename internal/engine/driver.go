package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftworks/weft/pkg/models"
)

// Driver owns workflow traversal: it seeds the queue from the entry
// nodes, dispatches each (node, input) pair to the registry, inspects
// outputs for the control markers, and persists the execution record at
// every state transition. One Driver serves all executions; each call to
// Execute or Resume is independent.
type Driver struct {
	caps     Capabilities
	registry *Registry
	tracer   trace.Tracer
}

func NewDriver(caps Capabilities) *Driver {
	return &Driver{
		caps:     caps,
		registry: NewRegistry(),
		tracer:   otel.Tracer("weft/engine"),
	}
}

// Registry exposes the handler table, letting hosts register extra node
// kinds before serving traffic.
func (d *Driver) Registry() *Registry {
	return d.registry
}

// Execute runs a workflow to completion, failure, or suspension and
// returns the result envelope. The request may carry a live graph from
// the editor; when it carries none, the stored workflow is loaded by id.
func (d *Driver) Execute(ctx context.Context, req *models.ExecuteWorkflowRequest) *models.ExecuteWorkflowResponse {
	executionID := uuid.New().String()
	startTime := d.caps.Clock.NowUTC()

	nodes, edges := req.Nodes, req.Edges
	workflowName := "Manual Execution"

	if req.WorkflowID != "" {
		if wf, err := d.caps.Store.GetWorkflow(ctx, req.WorkflowID); err == nil && wf != nil {
			workflowName = wf.Name
			if len(nodes) == 0 && len(edges) == 0 {
				nodes, edges = wf.Nodes, wf.Edges
			}
		}
	}

	ctx, span := d.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", req.WorkflowID),
			attribute.String("execution.id", executionID),
		))
	defer span.End()

	record := &models.ExecutionRecord{
		ID:           executionID,
		WorkflowID:   req.WorkflowID,
		WorkflowName: workflowName,
		StartTime:    startTime,
		Status:       models.ExecutionRunning,
		Results:      []models.NodeResult{},
	}
	if err := d.caps.Store.SaveExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to persist execution record")
	}

	ec := &Context{Capabilities: d.caps, Nodes: nodes, Edges: edges}
	queue := entryQueue(nodes, edges, req.TriggerNodeID)

	log.Info().
		Str("execution_id", executionID).
		Str("workflow", workflowName).
		Int("nodes", len(nodes)).
		Msg("🧵 Workflow execution started")

	return d.run(ctx, ec, record, queue)
}

// Resume continues a waiting execution from its snapshot. The snapshot's
// queue is replayed verbatim; items parked without an input (the paused
// node's successors) receive resumeInput. A record that is not waiting is
// left untouched.
func (d *Driver) Resume(ctx context.Context, record *models.ExecutionRecord, resumeInput any) *models.ExecuteWorkflowResponse {
	if record.Status != models.ExecutionWaiting || record.Snapshot == nil {
		return &models.ExecuteWorkflowResponse{
			Success:     true,
			ExecutionID: record.ID,
			Results:     record.Results,
		}
	}

	nodes, edges := d.resumeGraph(ctx, record)
	ec := &Context{Capabilities: d.caps, Nodes: nodes, Edges: edges}

	queue := make([]models.QueueItem, 0, len(record.Snapshot.RemainingQueue))
	for _, item := range record.Snapshot.RemainingQueue {
		if item.Input == nil {
			item.Input = resumeInput
		}
		queue = append(queue, item)
	}

	record.Status = models.ExecutionRunning
	record.Snapshot = nil

	ctx, span := d.tracer.Start(ctx, "workflow.resume",
		trace.WithAttributes(attribute.String("execution.id", record.ID)))
	defer span.End()

	log.Info().
		Str("execution_id", record.ID).
		Str("workflow", record.WorkflowName).
		Msg("▶️  Workflow execution resumed")

	return d.run(ctx, ec, record, queue)
}

// ExecuteNode evaluates a single node in isolation with an empty input,
// for the editor's "test step" button.
func (d *Driver) ExecuteNode(ctx context.Context, node *models.Node) models.NodeResult {
	ec := &Context{Capabilities: d.caps}
	started := time.Now()
	output, err := d.registry.Handle(ctx, ec, node, map[string]any{})
	result := models.NodeResult{
		NodeID:          node.ID,
		NodeName:        node.Label,
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
		result.Output = output
	}
	return result
}

// run is the traversal loop shared by Execute and Resume. It owns the
// record: every exit path persists a terminal or waiting state.
func (d *Driver) run(ctx context.Context, ec *Context, record *models.ExecutionRecord, queue []models.QueueItem) *models.ExecuteWorkflowResponse {
	success := true
	visited := make(map[string]struct{})

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		node := findNode(ec.Nodes, item.NodeID)
		if node == nil {
			continue
		}

		// Cycles converge: the same node never re-runs on the same input.
		key := node.ID + "\x00" + Fingerprint(item.Input)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		started := time.Now()
		output, err := d.registry.Handle(ctx, ec, node, item.Input)
		elapsed := time.Since(started).Milliseconds()

		if err != nil {
			success = false
			record.Results = append(record.Results, models.NodeResult{
				NodeID:          node.ID,
				NodeName:        node.Label,
				Success:         false,
				Error:           err.Error(),
				ExecutionTimeMs: elapsed,
			})
			log.Warn().
				Err(err).
				Str("execution_id", record.ID).
				Str("node", node.Label).
				Str("kind", node.Kind).
				Msg("Node failed")
			break
		}

		record.Results = append(record.Results, models.NodeResult{
			NodeID:          node.ID,
			NodeName:        node.Label,
			Success:         true,
			Output:          output,
			ExecutionTimeMs: elapsed,
		})
		log.Debug().
			Str("execution_id", record.ID).
			Str("node", node.Label).
			Str("kind", node.Kind).
			Int64("elapsed_ms", elapsed).
			Msg("✅ Node completed")

		outMap, _ := asMap(output)

		if isTrue(outMap["__filtered"]) {
			continue
		}

		if isTrue(outMap["__wait"]) {
			return d.suspend(ctx, record, node, item.Input, outMap, queue, ec.Edges)
		}

		for _, edge := range successorEdges(ec.Edges, node.ID, outMap) {
			queue = append(queue, models.QueueItem{NodeID: edge.To, Input: output})
		}
	}

	return d.finish(ctx, record, success)
}

// suspend persists the continuation and returns the paused envelope.
// The paused node's successors are parked in the queue without an input;
// Resume fills them with the approval payload.
func (d *Driver) suspend(ctx context.Context, record *models.ExecutionRecord, node *models.Node, input any, waitInfo map[string]any, queue []models.QueueItem, edges []models.Edge) *models.ExecuteWorkflowResponse {
	remaining := append([]models.QueueItem{}, queue...)
	for _, edge := range successorEdges(edges, node.ID, waitInfo) {
		remaining = append(remaining, models.QueueItem{NodeID: edge.To})
	}

	record.Status = models.ExecutionWaiting
	record.Snapshot = &models.Snapshot{
		LastOutput:     input,
		RemainingQueue: remaining,
		WaitInfo:       waitInfo,
		CurrentNodeID:  node.ID,
	}
	if err := d.caps.Store.UpdateExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to persist waiting execution")
	}

	log.Info().
		Str("execution_id", record.ID).
		Str("node", node.Label).
		Msg("⏸️  Workflow paused — waiting for external signal")

	return &models.ExecuteWorkflowResponse{
		Success:     true,
		ExecutionID: record.ID,
		Results:     record.Results,
		Error:       "Workflow paused",
	}
}

func (d *Driver) finish(ctx context.Context, record *models.ExecutionRecord, success bool) *models.ExecuteWorkflowResponse {
	end := d.caps.Clock.NowUTC()
	record.EndTime = &end
	record.Snapshot = nil
	if success {
		record.Status = models.ExecutionSuccess
	} else {
		record.Status = models.ExecutionFailed
	}
	if err := d.caps.Store.UpdateExecution(ctx, record); err != nil {
		log.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to persist execution record")
	}

	resp := &models.ExecuteWorkflowResponse{
		Success:     success,
		ExecutionID: record.ID,
		Results:     record.Results,
	}
	if success {
		log.Info().
			Str("execution_id", record.ID).
			Str("workflow", record.WorkflowName).
			Int("results", len(record.Results)).
			Msg("🎉 Workflow execution completed")
	} else {
		resp.Error = "Workflow execution failed"
		log.Error().
			Str("execution_id", record.ID).
			Str("workflow", record.WorkflowName).
			Msg("💥 Workflow execution failed")
	}
	return resp
}

// resumeGraph reloads the workflow definition so snapshot queue ids can
// be resolved back to nodes. Resume of an unsaved (manual) run can only
// replay the queue as far as the stored graph allows.
func (d *Driver) resumeGraph(ctx context.Context, record *models.ExecutionRecord) ([]models.Node, []models.Edge) {
	if record.WorkflowID == "" {
		return nil, nil
	}
	wf, err := d.caps.Store.GetWorkflow(ctx, record.WorkflowID)
	if err != nil || wf == nil {
		return nil, nil
	}
	return wf.Nodes, wf.Edges
}

// entryQueue picks the starting nodes: the requested trigger when given,
// otherwise every node without inbound edges.
func entryQueue(nodes []models.Node, edges []models.Edge, triggerNodeID string) []models.QueueItem {
	var queue []models.QueueItem

	if triggerNodeID != "" {
		if findNode(nodes, triggerNodeID) != nil {
			queue = append(queue, models.QueueItem{NodeID: triggerNodeID, Input: map[string]any{}})
		}
		return queue
	}

	hasInbound := make(map[string]bool, len(edges))
	for _, edge := range edges {
		hasInbound[edge.To] = true
	}
	for _, node := range nodes {
		if !hasInbound[node.ID] {
			queue = append(queue, models.QueueItem{NodeID: node.ID, Input: map[string]any{}})
		}
	}
	return queue
}

// successorEdges applies port routing: when the output names a __port,
// only edges tagged with that fromPort fire. Outbound edges that carry
// no fromPort at all fan out regardless of the port.
func successorEdges(edges []models.Edge, nodeID string, output map[string]any) []models.Edge {
	var outbound []models.Edge
	anyPorted := false
	for _, edge := range edges {
		if edge.From != nodeID {
			continue
		}
		outbound = append(outbound, edge)
		if edge.FromPort != nil {
			anyPorted = true
		}
	}

	port, hasPort := output["__port"].(string)
	if !hasPort || !anyPorted {
		return outbound
	}

	var out []models.Edge
	for _, edge := range outbound {
		if edge.FromPort != nil && *edge.FromPort == port {
			out = append(out, edge)
		}
	}
	return out
}

func findNode(nodes []models.Node, id string) *models.Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
	}
	return nil
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
