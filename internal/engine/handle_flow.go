package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// ignoreCaseOption reads config.options.ignoreCase, default true.
func ignoreCaseOption(node *models.Node) bool {
	if opts, ok := asMap(node.Config["options"]); ok {
		if v, ok := opts["ignoreCase"].(bool); ok {
			return v
		}
	}
	return true
}

// handleIf evaluates the condition tree and tags the input with
// __port = "true" | "false" so the driver routes to the matching branch.
func handleIf(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	pass := EvaluateConditions(node.Config["conditions"], input, ignoreCaseOption(node))

	port := "false"
	if pass {
		port = "true"
	}
	return withPort(input, port), nil
}

// handleFilter passes the input through on a match, otherwise emits the
// __filtered marker: the driver ends the branch but still records the
// node as successful.
func handleFilter(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	pass := EvaluateConditions(node.Config["conditions"], input, ignoreCaseOption(node))
	if pass {
		return input, nil
	}
	return map[string]any{"__filtered": true}, nil
}

// handleSwitch routes to the first matching rule's index as the output
// port, or "fallback" when none match. Expression mode emits the
// configured output index verbatim.
func handleSwitch(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	mode := cfgString(node, "mode", "rules")
	if mode != "rules" {
		return withPort(input, strconv.FormatInt(cfgInt(node, "output", 0), 10)), nil
	}

	ignoreCase := ignoreCaseOption(node)
	port := "fallback"
	if rules, ok := asMap(node.Config["rules"]); ok {
		if values, ok := rules["values"].([]any); ok {
			for i, raw := range values {
				rule, ok := asMap(raw)
				if !ok {
					continue
				}
				if EvaluateConditions(rule["conditions"], input, ignoreCase) {
					port = strconv.Itoa(i)
					break
				}
			}
		}
	}
	return withPort(input, port), nil
}

// handleWait sleeps for the configured duration through the Clock
// capability so cancellation interrupts it and tests can fake time.
func handleWait(ctx context.Context, ec *Context, node *models.Node, _ any) (any, error) {
	amount := cfgFloat(node, "amount", 1)
	unit := cfgString(node, "unit", "seconds")

	seconds := amount
	switch unit {
	case "minutes":
		seconds = amount * 60
	case "hours":
		seconds = amount * 3600
	}

	if err := ec.Clock.Sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return nil, err
	}
	return map[string]any{"waited": seconds, "unit": "seconds"}, nil
}

// withPort copies a mapping input and tags it with __port, so the tag
// never mutates a value another queued item still references. Inputs
// that are not mappings pass through untagged and fan out to all
// successors.
func withPort(input any, port string) any {
	m, ok := asMap(input)
	if !ok {
		return input
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["__port"] = port
	return out
}
