package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// handleDateTime formats, shifts, or extracts parts of a timestamp. The
// value is parsed from RFC 3339, "2006-01-02 15:04:05", a bare date, or
// a unix epoch (milliseconds when the literal is longer than 11 digits).
func handleDateTime(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	action := cfgString(node, "action", cfgString(node, "operation", "format"))

	valueRaw := cfgString(node, "value", cfgString(node, "date", ""))
	if valueRaw == "" {
		return nil, fmt.Errorf("Value not specified")
	}
	value := Interpolate(valueRaw, input)

	dt, err := parseDateTime(value)
	if err != nil {
		return nil, err
	}

	switch action {
	case "format", "formatDate":
		format := cfgString(node, "toFormat", cfgString(node, "format", "2006-01-02 15:04:05"))
		outputField := cfgString(node, "dataPropertyName", cfgString(node, "outputFieldName", "data"))
		return map[string]any{outputField: dt.Format(goTimeLayout(format))}, nil

	case "calculate", "addToDate", "subtractFromDate":
		operation := cfgString(node, "operation", "add")
		duration := cfgInt(node, "duration", 0)
		unit := cfgString(node, "timeUnit", "days")
		outputField := cfgString(node, "dataPropertyName", cfgString(node, "outputFieldName", "data"))

		if operation == "subtract" || action == "subtractFromDate" {
			duration = -duration
		}

		var shifted time.Time
		switch unit {
		case "seconds":
			shifted = dt.Add(time.Duration(duration) * time.Second)
		case "minutes":
			shifted = dt.Add(time.Duration(duration) * time.Minute)
		case "hours":
			shifted = dt.Add(time.Duration(duration) * time.Hour)
		case "weeks":
			shifted = dt.AddDate(0, 0, int(duration)*7)
		case "months":
			// Calendar-free approximation, 30 days per month.
			shifted = dt.AddDate(0, 0, int(duration)*30)
		case "years":
			// 365 days per year, same approximation.
			shifted = dt.AddDate(0, 0, int(duration)*365)
		default:
			shifted = dt.AddDate(0, 0, int(duration))
		}
		return map[string]any{outputField: shifted.Format(time.RFC3339)}, nil

	case "extractDate":
		part := cfgString(node, "part", "month")
		outputField := cfgString(node, "outputFieldName", "datePart")

		var val int64
		switch part {
		case "year":
			val = int64(dt.Year())
		case "month":
			val = int64(dt.Month())
		case "day":
			val = int64(dt.Day())
		case "hour":
			val = int64(dt.Hour())
		case "minute":
			val = int64(dt.Minute())
		case "second":
			val = int64(dt.Second())
		}
		return map[string]any{outputField: val}, nil

	default:
		return nil, fmt.Errorf("Unsupported action: %s", action)
	}
}

func parseDateTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		if len(value) > 11 {
			return time.UnixMilli(ts).UTC(), nil
		}
		return time.Unix(ts, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("Failed to parse date: %s", value)
}

// goTimeLayout maps the common n8n-style tokens onto reference layouts.
// Unrecognised formats pass through as literal Go layouts.
func goTimeLayout(format string) string {
	switch format {
	case "YYYY-MM-DD":
		return "2006-01-02"
	case "MM/DD/YYYY":
		return "01/02/2006"
	case "YYYY/MM/DD":
		return "2006/01/02"
	}
	return format
}
