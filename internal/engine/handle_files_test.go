package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

type fakeFiles struct {
	entries []FileEntry
	readErr error

	wrotePath   string
	wroteData   []byte
	wroteAppend bool
	writeErr    error
}

func (f *fakeFiles) ReadGlob(_ string) ([]FileEntry, error) {
	return f.entries, f.readErr
}

func (f *fakeFiles) WriteFile(path string, data []byte, append bool) error {
	f.wrotePath, f.wroteData, f.wroteAppend = path, data, append
	return f.writeErr
}

func TestConvertToFileCSV(t *testing.T) {
	node := &models.Node{Kind: "convert-to-file", Config: map[string]any{"operation": "csv"}}
	input := []any{
		map[string]any{"name": "Ada", "age": float64(36)},
		map[string]any{"name": "Grace", "age": float64(45)},
	}

	out, err := handleConvertToFile(context.Background(), nil, node, input)
	if err != nil {
		t.Fatalf("handleConvertToFile() error = %v", err)
	}
	m := out.(map[string]any)
	if m["format"] != "csv" {
		t.Errorf("format = %v", m["format"])
	}
	want := "age,name\n36,Ada\n45,Grace\n"
	if m["data"] != want {
		t.Errorf("data = %q, want %q", m["data"], want)
	}
}

func TestConvertToFileJSON(t *testing.T) {
	node := &models.Node{Kind: "convert-to-file", Config: map[string]any{"operation": "toJson"}}

	out, err := handleConvertToFile(context.Background(), nil, node, map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatalf("handleConvertToFile() error = %v", err)
	}
	m := out.(map[string]any)
	if m["format"] != "json" {
		t.Errorf("format = %v", m["format"])
	}
	if m["data"] != "{\n  \"a\": 1\n}" {
		t.Errorf("data = %q", m["data"])
	}
}

func TestConvertToFileText(t *testing.T) {
	node := &models.Node{Kind: "convert-to-file", Config: map[string]any{
		"operation":      "toText",
		"sourceProperty": "body",
	}}

	out, err := handleConvertToFile(context.Background(), nil, node, map[string]any{"body": "hello"})
	if err != nil {
		t.Fatalf("handleConvertToFile() error = %v", err)
	}
	if out.(map[string]any)["data"] != "hello" {
		t.Errorf("data = %v", out)
	}
}

func TestExtractFromFileCSVRoundTrip(t *testing.T) {
	node := &models.Node{Kind: "extract-from-file", Config: map[string]any{"operation": "csv"}}
	input := map[string]any{"data": "name,city\nAda,London\nGrace,Arlington\n"}

	out, err := handleExtractFromFile(context.Background(), nil, node, input)
	if err != nil {
		t.Fatalf("handleExtractFromFile() error = %v", err)
	}
	rows := out.([]any)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	first := rows[0].(map[string]any)
	if first["name"] != "Ada" || first["city"] != "London" {
		t.Errorf("first row = %v", first)
	}
}

func TestExtractFromFileJSON(t *testing.T) {
	node := &models.Node{Kind: "extract-from-file", Config: map[string]any{"operation": "fromJson"}}
	input := map[string]any{"data": `{"count": 3}`}

	out, err := handleExtractFromFile(context.Background(), nil, node, input)
	if err != nil {
		t.Fatalf("handleExtractFromFile() error = %v", err)
	}
	if out.(map[string]any)["count"] != float64(3) {
		t.Errorf("out = %v", out)
	}
}

func TestExtractFromFileMissingSource(t *testing.T) {
	node := &models.Node{Kind: "extract-from-file", Config: map[string]any{"operation": "csv"}}

	_, err := handleExtractFromFile(context.Background(), nil, node, map[string]any{"other": "x"})
	if err == nil || err.Error() != "Source data not found" {
		t.Errorf("error = %v", err)
	}
}

func TestReadWriteFileRead(t *testing.T) {
	files := &fakeFiles{entries: []FileEntry{
		{Path: "out/a.txt", Data: []byte("alpha")},
		{Path: "out/b.txt", Data: []byte("beta")},
	}}
	ec := &Context{Capabilities: Capabilities{Files: files}}
	node := &models.Node{Kind: "read-write-file", Config: map[string]any{
		"operation":    "read",
		"fileSelector": "out/*.txt",
	}}

	out, err := handleReadWriteFile(context.Background(), ec, node, nil)
	if err != nil {
		t.Fatalf("handleReadWriteFile() error = %v", err)
	}
	entries := out.([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["path"] != "out/a.txt" || first["data"] != "alpha" {
		t.Errorf("first entry = %v", first)
	}
}

func TestReadWriteFileReadRequiresSelector(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{Files: &fakeFiles{}}}
	node := &models.Node{Kind: "read-write-file", Config: map[string]any{"operation": "read"}}

	_, err := handleReadWriteFile(context.Background(), ec, node, nil)
	if err == nil || err.Error() != "File selector not specified" {
		t.Errorf("error = %v", err)
	}
}

func TestReadWriteFileWrite(t *testing.T) {
	files := &fakeFiles{}
	ec := &Context{Capabilities: Capabilities{Files: files}}
	node := &models.Node{Kind: "read-write-file", Config: map[string]any{
		"operation": "write",
		"fileName":  "report.txt",
		"append":    true,
	}}

	out, err := handleReadWriteFile(context.Background(), ec, node, map[string]any{"data": "line one\n"})
	if err != nil {
		t.Fatalf("handleReadWriteFile() error = %v", err)
	}
	m := out.(map[string]any)
	if m["success"] != true || m["path"] != "report.txt" {
		t.Errorf("out = %v", m)
	}
	if files.wrotePath != "report.txt" || string(files.wroteData) != "line one\n" || !files.wroteAppend {
		t.Errorf("WriteFile(%q, %q, append=%v)", files.wrotePath, files.wroteData, files.wroteAppend)
	}
}

func TestReadWriteFileWriteMissingData(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{Files: &fakeFiles{}}}
	node := &models.Node{Kind: "read-write-file", Config: map[string]any{
		"operation": "write",
		"fileName":  "report.txt",
	}}

	_, err := handleReadWriteFile(context.Background(), ec, node, map[string]any{})
	if err == nil || err.Error() != "Data to write not found" {
		t.Errorf("error = %v", err)
	}
}

func TestReadWriteFileReadError(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{Files: &fakeFiles{readErr: fmt.Errorf("permission denied")}}}
	node := &models.Node{Kind: "read-write-file", Config: map[string]any{
		"operation":    "read",
		"fileSelector": "/etc/*",
	}}

	if _, err := handleReadWriteFile(context.Background(), ec, node, nil); err == nil {
		t.Error("expected the capability error to propagate")
	}
}
