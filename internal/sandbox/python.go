package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// PyRunner executes user Python in a python3 subprocess. The user code
// becomes the body of main(data); the input arrives base64-encoded so
// no quoting of user data leaks into the wrapper script.
type PyRunner struct {
	interpreter string
}

func NewPyRunner() *PyRunner {
	return &PyRunner{interpreter: "python3"}
}

func (r *PyRunner) Run(ctx context.Context, code string, input any) (any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		raw = []byte("{}")
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	wrapper := fmt.Sprintf(`
import json
import sys
import base64

try:
    input_str = base64.b64decode('%s').decode('utf-8')
    data = json.loads(input_str)

    def main(data):
%s

    result = main(data)
    print(json.dumps(result))
except Exception as e:
    print(json.dumps({"error": str(e)}), file=sys.stderr)
    sys.exit(1)
`, encoded, indentCode(code))

	cmd := exec.CommandContext(ctx, r.interpreter, "-c", wrapper)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, err
	}

	out := strings.TrimSpace(stdout.String())
	var result any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return map[string]any{"output": out}, nil
	}
	return result, nil
}

func indentCode(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = "        " + line
	}
	return strings.Join(lines, "\n")
}
