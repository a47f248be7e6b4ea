package engine

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/weftworks/weft/pkg/models"
)

// handleConvertToFile serialises the input into a file payload:
// {data, format}. CSV writes a header row from the first object's keys
// (sorted for a stable column order) and one line per object.
func handleConvertToFile(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	operation := cfgString(node, "operation", "csv")

	switch operation {
	case "csv":
		data, err := toCSV(input)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": data, "format": "csv"}, nil

	case "toJson":
		b, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": string(b), "format": "json"}, nil

	case "toText":
		source := cfgString(node, "sourceProperty", "data")
		text := ""
		if m, ok := asMap(input); ok {
			text, _ = m[source].(string)
		}
		return map[string]any{"data": text, "format": "text"}, nil

	case "toBinary":
		source := cfgString(node, "sourceProperty", "data")
		b64 := ""
		if m, ok := asMap(input); ok {
			b64, _ = m[source].(string)
		}
		return map[string]any{"data": b64, "format": "base64"}, nil

	default:
		return nil, fmt.Errorf("Unsupported convert operation: %s", operation)
	}
}

// handleExtractFromFile parses a file payload carried in the input back
// into structured data. The source field defaults to "data".
func handleExtractFromFile(_ context.Context, _ *Context, node *models.Node, input any) (any, error) {
	operation := cfgString(node, "operation", "csv")
	sourceField := cfgString(node, "binaryPropertyName", "data")

	m, ok := asMap(input)
	if !ok {
		return nil, fmt.Errorf("Source data not found")
	}
	content, ok := m[sourceField].(string)
	if !ok {
		return nil, fmt.Errorf("Source data not found")
	}

	switch operation {
	case "csv":
		return fromCSV(content)

	case "fromJson":
		var val any
		if err := json.Unmarshal([]byte(content), &val); err != nil {
			return nil, err
		}
		return val, nil

	case "text":
		return map[string]any{"data": content}, nil

	case "binaryToPropery":
		// Historical spelling, kept for workflow compatibility.
		dest := cfgString(node, "destinationKey", "data")
		return map[string]any{dest: content}, nil

	default:
		return nil, fmt.Errorf("Unsupported extract operation: %s", operation)
	}
}

// handleReadWriteFile reads files matched by a glob, or writes one field
// of the input to a file. All filesystem access goes through the FileIO
// capability.
func handleReadWriteFile(_ context.Context, ec *Context, node *models.Node, input any) (any, error) {
	operation := cfgString(node, "operation", "read")

	switch operation {
	case "read":
		pattern, err := cfgRequiredString(node, "fileSelector", "File selector")
		if err != nil {
			return nil, err
		}
		entries, err := ec.Files.ReadGlob(pattern)
		if err != nil {
			return nil, err
		}
		results := make([]any, 0, len(entries))
		for _, e := range entries {
			results = append(results, map[string]any{"path": e.Path, "data": string(e.Data)})
		}
		return results, nil

	case "write":
		path, err := cfgRequiredString(node, "fileName", "File name")
		if err != nil {
			return nil, err
		}
		sourceField := cfgString(node, "dataPropertyName", "data")
		m, ok := asMap(input)
		if !ok {
			return nil, fmt.Errorf("Data to write not found")
		}
		content, ok := m[sourceField].(string)
		if !ok {
			return nil, fmt.Errorf("Data to write not found")
		}
		if err := ec.Files.WriteFile(path, []byte(content), cfgBool(node, "append", false)); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "path": path}, nil

	default:
		return nil, fmt.Errorf("Unsupported file operation: %s", operation)
	}
}

// toCSV renders an object or a list of objects with a header row built
// from the first object's keys, sorted.
func toCSV(input any) (string, error) {
	var objects []map[string]any
	switch v := input.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := asMap(item); ok {
				objects = append(objects, obj)
			}
		}
	case map[string]any:
		objects = append(objects, v)
	}
	if len(objects) == 0 {
		return "", nil
	}

	header := make([]string, 0, len(objects[0]))
	for k := range objects[0] {
		header = append(header, k)
	}
	sort.Strings(header)

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, obj := range objects {
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = stringify(obj[k])
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// fromCSV parses CSV text with a header row into a list of mappings.
func fromCSV(content string) (any, error) {
	r := csv.NewReader(strings.NewReader(content))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []any{}, nil
	}
	header := rows[0]
	results := make([]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		results = append(results, record)
	}
	return results, nil
}
