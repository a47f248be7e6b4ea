package engine

import (
	"strconv"
	"strings"
)

// EvaluateConditions evaluates a typed condition tree against an input
// value. The tree has the shape
//
//	{conditions: [{leftValue, rightValue, operator: {type, operation}}, ...],
//	 combinator: "and" | "or"}
//
// Both sides of every condition are interpolated against the input before
// comparison. A missing conditions list is vacuously true; with the "and"
// combinator an empty list is true, with "or" it is false. Unknown
// operator types or operations evaluate to false.
func EvaluateConditions(conditions any, input any, ignoreCase bool) bool {
	condObj, ok := asMap(conditions)
	if !ok {
		return true
	}
	list, ok := condObj["conditions"].([]any)
	if !ok {
		return true
	}
	combinator, _ := condObj["combinator"].(string)
	if combinator == "" {
		combinator = "and"
	}

	results := make([]bool, 0, len(list))
	for _, raw := range list {
		cond, ok := asMap(raw)
		if !ok {
			results = append(results, false)
			continue
		}
		leftRaw, _ := cond["leftValue"].(string)
		rightRaw, _ := cond["rightValue"].(string)
		left := Interpolate(leftRaw, input)
		right := Interpolate(rightRaw, input)

		opType, opName := "string", "equals"
		if op, ok := asMap(cond["operator"]); ok {
			if t, ok := op["type"].(string); ok && t != "" {
				opType = t
			}
			if n, ok := op["operation"].(string); ok && n != "" {
				opName = n
			}
		}

		results = append(results, evalCondition(opType, opName, left, right, ignoreCase))
	}

	if combinator == "or" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func evalCondition(opType, opName, left, right string, ignoreCase bool) bool {
	switch opType {
	case "string":
		l, r := left, right
		if ignoreCase {
			l, r = strings.ToLower(l), strings.ToLower(r)
		}
		switch opName {
		case "equals":
			return l == r
		case "notEquals":
			return l != r
		case "contains":
			return strings.Contains(l, r)
		case "notContains":
			return !strings.Contains(l, r)
		case "startsWith":
			return strings.HasPrefix(l, r)
		case "endsWith":
			return strings.HasSuffix(l, r)
		case "isEmpty":
			return l == ""
		case "isNotEmpty":
			return l != ""
		}
	case "number":
		l := parseFloatOrZero(left)
		r := parseFloatOrZero(right)
		switch opName {
		case "equals", "eq":
			return l == r
		case "notEquals", "ne":
			return l != r
		case "gt", "larger":
			return l > r
		case "gte", "largerEqual":
			return l >= r
		case "lt", "smaller":
			return l < r
		case "lte", "smallerEqual":
			return l <= r
		}
	case "boolean":
		l := parseBoolOrFalse(left)
		r := parseBoolOrFalse(right)
		switch opName {
		case "true":
			return l
		case "false":
			return !l
		case "equals":
			return l == r
		}
	}
	return false
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBoolOrFalse(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}
