package engine

import (
	"context"
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

func dateTimeNode(config map[string]any) *models.Node {
	return &models.Node{ID: "dt1", Kind: "dateTime", Config: config}
}

func TestDateTimeFormat(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   string
	}{
		{
			"rfc3339 to date token",
			map[string]any{"action": "format", "value": "2025-06-01T15:30:00Z", "toFormat": "YYYY-MM-DD"},
			"2025-06-01",
		},
		{
			"us date token",
			map[string]any{"action": "format", "value": "2025-06-01", "toFormat": "MM/DD/YYYY"},
			"06/01/2025",
		},
		{
			"default layout",
			map[string]any{"action": "format", "value": "2025-06-01T15:30:45Z"},
			"2025-06-01 15:30:45",
		},
		{
			"epoch seconds",
			map[string]any{"action": "format", "value": "1748790000", "toFormat": "YYYY-MM-DD"},
			"2025-06-01",
		},
		{
			"epoch milliseconds",
			map[string]any{"action": "format", "value": "1748790000000", "toFormat": "YYYY-MM-DD"},
			"2025-06-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := handleDateTime(context.Background(), nil, dateTimeNode(tt.config), nil)
			if err != nil {
				t.Fatalf("handleDateTime() error = %v", err)
			}
			if got := out.(map[string]any)["data"]; got != tt.want {
				t.Errorf("data = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestDateTimeInterpolatesValue(t *testing.T) {
	node := dateTimeNode(map[string]any{
		"action":   "format",
		"value":    "{{ $input.created }}",
		"toFormat": "YYYY-MM-DD",
	})

	out, err := handleDateTime(context.Background(), nil, node, map[string]any{"created": "2025-02-03T00:00:00Z"})
	if err != nil {
		t.Fatalf("handleDateTime() error = %v", err)
	}
	if got := out.(map[string]any)["data"]; got != "2025-02-03" {
		t.Errorf("data = %v", got)
	}
}

func TestDateTimeCalculate(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   string
	}{
		{
			"add days",
			map[string]any{"action": "calculate", "value": "2025-06-01", "operation": "add", "duration": float64(10), "timeUnit": "days"},
			"2025-06-11T00:00:00Z",
		},
		{
			"subtract hours",
			map[string]any{"action": "calculate", "value": "2025-06-01T12:00:00Z", "operation": "subtract", "duration": float64(3), "timeUnit": "hours"},
			"2025-06-01T09:00:00Z",
		},
		{
			"months as 30 days",
			map[string]any{"action": "addToDate", "value": "2025-01-01", "duration": float64(1), "timeUnit": "months"},
			"2025-01-31T00:00:00Z",
		},
		{
			"years as 365 days",
			map[string]any{"action": "addToDate", "value": "2024-01-01", "duration": float64(1), "timeUnit": "years"},
			"2024-12-31T00:00:00Z",
		},
		{
			"subtractFromDate action",
			map[string]any{"action": "subtractFromDate", "value": "2025-06-08", "duration": float64(1), "timeUnit": "weeks"},
			"2025-06-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := handleDateTime(context.Background(), nil, dateTimeNode(tt.config), nil)
			if err != nil {
				t.Fatalf("handleDateTime() error = %v", err)
			}
			if got := out.(map[string]any)["data"]; got != tt.want {
				t.Errorf("data = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestDateTimeExtract(t *testing.T) {
	node := dateTimeNode(map[string]any{
		"action": "extractDate",
		"value":  "2025-06-01T15:30:45Z",
		"part":   "hour",
	})

	out, err := handleDateTime(context.Background(), nil, node, nil)
	if err != nil {
		t.Fatalf("handleDateTime() error = %v", err)
	}
	if got := out.(map[string]any)["datePart"]; got != int64(15) {
		t.Errorf("datePart = %v (%T), want 15", got, got)
	}
}

func TestDateTimeUnparseableValue(t *testing.T) {
	node := dateTimeNode(map[string]any{"action": "format", "value": "next tuesday"})

	_, err := handleDateTime(context.Background(), nil, node, nil)
	if err == nil || err.Error() != "Failed to parse date: next tuesday" {
		t.Errorf("error = %v", err)
	}
}
