package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

func newTestDriver(st *fakeStore) *Driver {
	return NewDriver(Capabilities{Store: st, Clock: newFakeClock()})
}

func edge(id, from, to string) models.Edge {
	return models.Edge{ID: id, From: from, To: to}
}

func portEdge(id, from, to, fromPort string) models.Edge {
	return models.Edge{ID: id, From: from, To: to, FromPort: strPtr(fromPort)}
}

func resultNodeIDs(results []models.NodeResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.NodeID)
	}
	return ids
}

func TestExecuteLinearWorkflow(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	var seen []any
	d.Registry().Register("probe", func(_ context.Context, _ *Context, _ *models.Node, input any) (any, error) {
		seen = append(seen, input)
		return map[string]any{"step": "done"}, nil
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start", Label: "Start"},
			{ID: "a", Kind: "probe", Label: "Step A"},
		},
		Edges: []models.Edge{edge("e1", "t", "a")},
	})

	if !resp.Success {
		t.Fatalf("Execute() success = false, error = %q", resp.Error)
	}
	if got := resultNodeIDs(resp.Results); len(got) != 2 || got[0] != "t" || got[1] != "a" {
		t.Fatalf("result order = %v, want [t a]", got)
	}
	if len(seen) != 1 {
		t.Fatalf("probe ran %d times, want 1", len(seen))
	}
	in := seen[0].(map[string]any)
	if in["triggered"] != true {
		t.Errorf("probe input = %v, want trigger output", seen[0])
	}

	final := st.lastUpdate()
	if final == nil || final.Status != models.ExecutionSuccess {
		t.Errorf("stored status = %v, want success", final)
	}
	if final.EndTime == nil {
		t.Error("terminal record should carry an end time")
	}
	if final.Snapshot != nil {
		t.Error("terminal record should carry no snapshot")
	}
}

func TestExecuteRecordsRunningStateFirst(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{{ID: "t", Kind: "trigger-start"}},
	})

	if len(st.saved) != 1 {
		t.Fatalf("SaveExecution calls = %d, want 1", len(st.saved))
	}
	if st.saved[0].Status != models.ExecutionRunning &&
		st.saved[0].Status != models.ExecutionSuccess {
		// The driver mutates the shared record after saving; what matters
		// is that a save happened before the first node ran.
		t.Errorf("initial save status = %v", st.saved[0].Status)
	}
}

func TestExecuteLoadsStoredGraph(t *testing.T) {
	st := newFakeStore()
	st.workflows["wf1"] = &models.Workflow{
		ID:   "wf1",
		Name: "Nightly sync",
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start", Label: "Start"},
		},
	}
	d := newTestDriver(st)

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{WorkflowID: "wf1"})

	if !resp.Success || len(resp.Results) != 1 {
		t.Fatalf("Execute() = %+v, want one result from the stored graph", resp)
	}
	if st.lastUpdate().WorkflowName != "Nightly sync" {
		t.Errorf("workflow name = %q, want %q", st.lastUpdate().WorkflowName, "Nightly sync")
	}
}

func TestExecuteTriggerNodeSelection(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t1", Kind: "trigger-start"},
			{ID: "t2", Kind: "trigger-schedule"},
		},
		TriggerNodeID: "t2",
	})

	if got := resultNodeIDs(resp.Results); len(got) != 1 || got[0] != "t2" {
		t.Errorf("results = %v, want only the requested trigger", got)
	}
}

func TestExecuteIfRoutesMatchingBranch(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	var ran []string
	d.Registry().Register("probe", func(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
		ran = append(ran, node.ID)
		return map[string]any{}, nil
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start"},
			{ID: "gate", Kind: "if", Config: map[string]any{
				"conditions": tree("and", condition("{{ $input.triggered }}", "true", "string", "equals")),
			}},
			{ID: "yes", Kind: "probe"},
			{ID: "no", Kind: "probe"},
		},
		Edges: []models.Edge{
			edge("e1", "t", "gate"),
			portEdge("e2", "gate", "yes", "true"),
			portEdge("e3", "gate", "no", "false"),
		},
	})

	if !resp.Success {
		t.Fatalf("Execute() failed: %q", resp.Error)
	}
	if len(ran) != 1 || ran[0] != "yes" {
		t.Errorf("ran = %v, want only the true branch", ran)
	}
}

func TestExecutePortAgnosticFanOut(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	var ran []string
	d.Registry().Register("probe", func(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
		ran = append(ran, node.ID)
		return map[string]any{}, nil
	})

	// The if node emits __port, but neither outbound edge names a
	// fromPort: both successors fire.
	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "gate", Kind: "if", Config: map[string]any{}},
			{ID: "a", Kind: "probe"},
			{ID: "b", Kind: "probe"},
		},
		Edges: []models.Edge{
			edge("e1", "gate", "a"),
			edge("e2", "gate", "b"),
		},
	})

	if !resp.Success {
		t.Fatalf("Execute() failed: %q", resp.Error)
	}
	if len(ran) != 2 {
		t.Errorf("ran = %v, want both successors", ran)
	}
}

func TestExecuteFilterEndsBranchQuietly(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	var ran []string
	d.Registry().Register("probe", func(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
		ran = append(ran, node.ID)
		return map[string]any{}, nil
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start"},
			{ID: "f", Kind: "filter", Config: map[string]any{
				"conditions": tree("and", condition("a", "b", "string", "equals")),
			}},
			{ID: "after", Kind: "probe"},
		},
		Edges: []models.Edge{edge("e1", "t", "f"), edge("e2", "f", "after")},
	})

	if !resp.Success {
		t.Fatalf("a filtered branch must not fail the run: %q", resp.Error)
	}
	if len(ran) != 0 {
		t.Errorf("downstream of a filtered node ran: %v", ran)
	}
	// The filter itself is still recorded as a successful step.
	if got := resultNodeIDs(resp.Results); len(got) != 2 || got[1] != "f" {
		t.Errorf("results = %v, want [t f]", got)
	}
}

func TestExecuteNodeFailureStopsRun(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	var ran []string
	d.Registry().Register("probe", func(_ context.Context, _ *Context, node *models.Node, _ any) (any, error) {
		ran = append(ran, node.ID)
		return map[string]any{}, nil
	})
	d.Registry().Register("boom", func(_ context.Context, _ *Context, _ *models.Node, _ any) (any, error) {
		return nil, fmt.Errorf("HTTP Error: connection refused")
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start"},
			{ID: "bad", Kind: "boom"},
			{ID: "after", Kind: "probe"},
		},
		Edges: []models.Edge{edge("e1", "t", "bad"), edge("e2", "bad", "after")},
	})

	if resp.Success {
		t.Fatal("Execute() success = true, want failure")
	}
	if resp.Error != "Workflow execution failed" {
		t.Errorf("envelope error = %q, want %q", resp.Error, "Workflow execution failed")
	}
	if len(ran) != 0 {
		t.Errorf("nodes after the failure ran: %v", ran)
	}

	last := resp.Results[len(resp.Results)-1]
	if last.NodeID != "bad" || last.Success || last.Error != "HTTP Error: connection refused" {
		t.Errorf("failed result = %+v", last)
	}
	if st.lastUpdate().Status != models.ExecutionFailed {
		t.Errorf("stored status = %v, want failed", st.lastUpdate().Status)
	}
}

func TestExecuteCyclicGraphTerminates(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	d.Registry().Register("emit", func(_ context.Context, _ *Context, _ *models.Node, _ any) (any, error) {
		return map[string]any{"v": float64(1)}, nil
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{
			{ID: "t", Kind: "trigger-start"},
			{ID: "a", Kind: "emit"},
			{ID: "b", Kind: "emit"},
		},
		Edges: []models.Edge{
			edge("e1", "t", "a"),
			edge("e2", "a", "b"),
			edge("e3", "b", "a"),
		},
	})

	if !resp.Success {
		t.Fatalf("Execute() failed: %q", resp.Error)
	}
	// t, a({triggered}), b({v:1}), a({v:1}); the second b({v:1}) is a
	// repeat of (node, input) and is skipped.
	if got := resultNodeIDs(resp.Results); len(got) != 4 {
		t.Errorf("results = %v, want 4 entries before the cycle converges", got)
	}
}

func TestExecuteUnknownKindIsSoftNoOp(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{{ID: "x", Kind: "telegram-send"}},
	})

	if !resp.Success || len(resp.Results) != 1 {
		t.Fatalf("Execute() = %+v", resp)
	}
	out := resp.Results[0].Output.(map[string]any)
	if out["result"] != "Node executed" {
		t.Errorf("unknown kind output = %v, want the no-op contract", out)
	}
}

func TestExecuteMissingQueueNodeSkipped(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{{ID: "t", Kind: "trigger-start"}},
		Edges: []models.Edge{edge("e1", "t", "ghost")},
	})

	if !resp.Success || len(resp.Results) != 1 {
		t.Errorf("edges to unknown nodes should be ignored, got %+v", resp)
	}
}

func TestSuspendAndResume(t *testing.T) {
	st := newFakeStore()
	nodes := []models.Node{
		{ID: "t", Kind: "trigger-start"},
		{ID: "approval", Kind: "pause", Label: "Approval"},
		{ID: "after", Kind: "probe"},
	}
	edges := []models.Edge{edge("e1", "t", "approval"), edge("e2", "approval", "after")}
	st.workflows["wf1"] = &models.Workflow{ID: "wf1", Name: "Approvals", Nodes: nodes, Edges: edges}

	d := newTestDriver(st)
	d.Registry().Register("pause", func(_ context.Context, _ *Context, _ *models.Node, _ any) (any, error) {
		return map[string]any{"__wait": true, "type": "slack_interactive", "ts": "171.001"}, nil
	})
	var afterInputs []any
	d.Registry().Register("probe", func(_ context.Context, _ *Context, _ *models.Node, input any) (any, error) {
		afterInputs = append(afterInputs, input)
		return map[string]any{}, nil
	})

	resp := d.Execute(context.Background(), &models.ExecuteWorkflowRequest{
		WorkflowID: "wf1", Nodes: nodes, Edges: edges,
	})

	if !resp.Success || resp.Error != "Workflow paused" {
		t.Fatalf("paused envelope = %+v", resp)
	}
	// The wait node's own result lands before the suspension.
	if got := resultNodeIDs(resp.Results); len(got) != 2 || got[1] != "approval" {
		t.Fatalf("results at suspension = %v, want [t approval]", got)
	}

	rec := st.lastUpdate()
	if rec.Status != models.ExecutionWaiting || rec.Snapshot == nil {
		t.Fatalf("stored record = %+v, want waiting with snapshot", rec)
	}
	snap := rec.Snapshot
	if snap.CurrentNodeID != "approval" {
		t.Errorf("snapshot current node = %q, want approval", snap.CurrentNodeID)
	}
	if snap.WaitInfo["ts"] != "171.001" {
		t.Errorf("snapshot wait info = %v", snap.WaitInfo)
	}
	if len(snap.RemainingQueue) != 1 || snap.RemainingQueue[0].NodeID != "after" || snap.RemainingQueue[0].Input != nil {
		t.Fatalf("remaining queue = %+v, want [after] with no input", snap.RemainingQueue)
	}
	if len(afterInputs) != 0 {
		t.Fatal("successor ran before resume")
	}

	resumeRec := *rec
	resumeResp := d.Resume(context.Background(), &resumeRec, map[string]any{"action": "approve", "user": "ada"})

	if !resumeResp.Success || resumeResp.Error != "" {
		t.Fatalf("resume envelope = %+v", resumeResp)
	}
	if len(afterInputs) != 1 {
		t.Fatalf("successor ran %d times after resume, want 1", len(afterInputs))
	}
	in := afterInputs[0].(map[string]any)
	if in["action"] != "approve" || in["user"] != "ada" {
		t.Errorf("resume input = %v", in)
	}

	final := st.lastUpdate()
	if final.Status != models.ExecutionSuccess {
		t.Errorf("final status = %v, want success", final.Status)
	}
	if final.Snapshot != nil {
		t.Error("snapshot should be cleared on completion")
	}
	// The resumed run appends to the original results.
	if got := resultNodeIDs(final.Results); len(got) != 3 || got[2] != "after" {
		t.Errorf("final results = %v, want [t approval after]", got)
	}
}

func TestResumeNonWaitingRecordIsNoOp(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	rec := &models.ExecutionRecord{
		ID:      "x1",
		Status:  models.ExecutionSuccess,
		Results: []models.NodeResult{{NodeID: "t", Success: true}},
	}
	resp := d.Resume(context.Background(), rec, map[string]any{"action": "approve"})

	if !resp.Success || resp.ExecutionID != "x1" || len(resp.Results) != 1 {
		t.Errorf("Resume() on a finished record = %+v, want untouched envelope", resp)
	}
	if len(st.updates) != 0 {
		t.Error("Resume() on a finished record must not write the store")
	}
}

func TestExecuteNodeIsolated(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	result := d.ExecuteNode(context.Background(), &models.Node{
		ID:    "n1",
		Kind:  "trigger-start",
		Label: "Start",
	})

	if !result.Success || result.NodeID != "n1" || result.NodeName != "Start" {
		t.Errorf("ExecuteNode() = %+v", result)
	}
	out := result.Output.(map[string]any)
	if out["triggered"] != true {
		t.Errorf("output = %v", out)
	}
	if len(st.saved) != 0 {
		t.Error("single-node execution must not persist a record")
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := d.Execute(ctx, &models.ExecuteWorkflowRequest{
		Nodes: []models.Node{{ID: "t", Kind: "trigger-start"}},
	})

	if resp.Success {
		t.Error("Execute() with a cancelled context should fail")
	}
}
