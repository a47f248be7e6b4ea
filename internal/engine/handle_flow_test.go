package engine

import (
	"context"
	"testing"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

func TestHandleIfTagsPort(t *testing.T) {
	node := &models.Node{
		ID:   "if1",
		Kind: "if",
		Config: map[string]any{
			"conditions": tree("and", condition("{{ $input.status }}", "ok", "string", "equals")),
		},
	}

	out, err := handleIf(context.Background(), nil, node, map[string]any{"status": "ok"})
	if err != nil {
		t.Fatalf("handleIf() error = %v", err)
	}
	m := out.(map[string]any)
	if m["__port"] != "true" {
		t.Errorf("__port = %v, want %q", m["__port"], "true")
	}
	if m["status"] != "ok" {
		t.Errorf("input field lost: status = %v", m["status"])
	}

	out, _ = handleIf(context.Background(), nil, node, map[string]any{"status": "nope"})
	if out.(map[string]any)["__port"] != "false" {
		t.Errorf("__port = %v, want %q", out.(map[string]any)["__port"], "false")
	}
}

func TestHandleIfDoesNotMutateInput(t *testing.T) {
	node := &models.Node{Kind: "if", Config: map[string]any{}}
	input := map[string]any{"k": "v"}

	handleIf(context.Background(), nil, node, input)

	if _, ok := input["__port"]; ok {
		t.Error("handleIf mutated the shared input map")
	}
}

func TestHandleFilterPassThrough(t *testing.T) {
	node := &models.Node{
		Kind: "filter",
		Config: map[string]any{
			"conditions": tree("and", condition("{{ $input.keep }}", "yes", "string", "equals")),
		},
	}
	input := map[string]any{"keep": "yes"}

	out, err := handleFilter(context.Background(), nil, node, input)
	if err != nil {
		t.Fatalf("handleFilter() error = %v", err)
	}
	if m := out.(map[string]any); m["keep"] != "yes" {
		t.Errorf("matching input should pass through, got %v", out)
	}
}

func TestHandleFilterEmitsMarker(t *testing.T) {
	node := &models.Node{
		Kind: "filter",
		Config: map[string]any{
			"conditions": tree("and", condition("{{ $input.keep }}", "yes", "string", "equals")),
		},
	}

	out, err := handleFilter(context.Background(), nil, node, map[string]any{"keep": "no"})
	if err != nil {
		t.Fatalf("handleFilter() error = %v", err)
	}
	m := out.(map[string]any)
	if m["__filtered"] != true {
		t.Errorf("non-matching input should emit __filtered, got %v", out)
	}
}

func TestHandleSwitchFirstMatchingRule(t *testing.T) {
	node := &models.Node{
		Kind: "switch",
		Config: map[string]any{
			"rules": map[string]any{
				"values": []any{
					map[string]any{"conditions": tree("and", condition("{{ $input.tier }}", "gold", "string", "equals"))},
					map[string]any{"conditions": tree("and", condition("{{ $input.tier }}", "silver", "string", "equals"))},
				},
			},
		},
	}

	out, err := handleSwitch(context.Background(), nil, node, map[string]any{"tier": "silver"})
	if err != nil {
		t.Fatalf("handleSwitch() error = %v", err)
	}
	if port := out.(map[string]any)["__port"]; port != "1" {
		t.Errorf("__port = %v, want %q", port, "1")
	}
}

func TestHandleSwitchFallback(t *testing.T) {
	node := &models.Node{
		Kind: "switch",
		Config: map[string]any{
			"rules": map[string]any{
				"values": []any{
					map[string]any{"conditions": tree("and", condition("{{ $input.tier }}", "gold", "string", "equals"))},
				},
			},
		},
	}

	out, _ := handleSwitch(context.Background(), nil, node, map[string]any{"tier": "bronze"})
	if port := out.(map[string]any)["__port"]; port != "fallback" {
		t.Errorf("__port = %v, want %q", port, "fallback")
	}
}

func TestHandleSwitchExpressionMode(t *testing.T) {
	node := &models.Node{
		Kind:   "switch",
		Config: map[string]any{"mode": "expression", "output": float64(2)},
	}

	out, _ := handleSwitch(context.Background(), nil, node, map[string]any{})
	if port := out.(map[string]any)["__port"]; port != "2" {
		t.Errorf("__port = %v, want %q", port, "2")
	}
}

func TestHandleWaitSleepsThroughClock(t *testing.T) {
	clock := newFakeClock()
	ec := &Context{Capabilities: Capabilities{Clock: clock}}
	node := &models.Node{
		Kind:   "wait",
		Config: map[string]any{"amount": float64(1.5), "unit": "minutes"},
	}

	out, err := handleWait(context.Background(), ec, node, nil)
	if err != nil {
		t.Fatalf("handleWait() error = %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 90*time.Second {
		t.Errorf("Sleep calls = %v, want one 90s sleep", clock.sleeps)
	}
	if w := out.(map[string]any)["waited"]; w != float64(90) {
		t.Errorf("waited = %v, want 90", w)
	}
}

func TestHandleWaitDefaults(t *testing.T) {
	clock := newFakeClock()
	ec := &Context{Capabilities: Capabilities{Clock: clock}}
	node := &models.Node{Kind: "wait", Config: map[string]any{}}

	if _, err := handleWait(context.Background(), ec, node, nil); err != nil {
		t.Fatalf("handleWait() error = %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != time.Second {
		t.Errorf("Sleep calls = %v, want one 1s sleep", clock.sleeps)
	}
}

func TestWithPortNonMapPassesThrough(t *testing.T) {
	out := withPort([]any{"a", "b"}, "true")
	if _, ok := out.([]any); !ok {
		t.Errorf("withPort() on a list = %T, want the list unchanged", out)
	}
}
