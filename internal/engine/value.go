// Package engine implements the workflow execution engine: a graph
// interpreter that derives an execution order from nodes and edges,
// evaluates each node against a registry of typed handlers, routes data
// between nodes using interpolated inputs and port-based branching, and
// suspends/resumes executions through persisted snapshots.
//
// Node I/O is dynamic JSON (any / map[string]any). The driver is the only
// component that inspects outputs, and only for the three control markers
// __filtered, __wait and __port.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Interpolate replaces {{ $input.<key> }} tokens in template with values
// from input. Strings are substituted raw; other values are rendered as
// JSON. The bare token {{ $input }} is replaced by the whole input.
// Unknown placeholders are left untouched. Replacement is textual and
// non-recursive.
func Interpolate(template string, input any) string {
	result := template
	if obj, ok := input.(map[string]any); ok {
		for k, v := range obj {
			placeholder := "{{ $input." + k + " }}"
			if !strings.Contains(result, placeholder) {
				continue
			}
			result = strings.ReplaceAll(result, placeholder, stringify(v))
		}
	}
	result = strings.ReplaceAll(result, "{{ $input }}", stringify(input))
	return result
}

// stringify renders a value for interpolation: strings raw, everything
// else as compact JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Fingerprint returns a stable hash of the canonical JSON serialisation
// of v. The driver keys its visited set on (nodeID, Fingerprint(input))
// so cyclic graphs terminate: a node fed the same input twice is skipped.
func Fingerprint(v any) string {
	var sb strings.Builder
	canonicalJSON(&sb, v)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON writes v as JSON with map keys sorted, so logically equal
// values always produce the same bytes regardless of insertion order.
func canonicalJSON(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			canonicalJSON(sb, x[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			canonicalJSON(sb, item)
		}
		sb.WriteByte(']')
	default:
		b, err := json.Marshal(x)
		if err != nil {
			sb.WriteString("null")
			return
		}
		sb.Write(b)
	}
}

// normalize round-trips v through encoding/json so handler outputs built
// from typed structs look identical to outputs decoded from the wire
// (map[string]any / []any / float64 / string / bool / nil).
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// asMap returns v as a mapping, or false when it is any other shape.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
