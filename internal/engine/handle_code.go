package engine

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

// handleCode runs user code in a sandboxed runner. The wrapping
// convention (JS async IIFE with the $input helpers, Python def main(data)
// body) is owned by the runner implementations so this handler stays a
// thin dispatch on language.
func handleCode(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	code := cfgString(node, "code", "return $input;")
	language := cfgString(node, "language", "javascript")

	switch language {
	case "javascript":
		out, err := ec.JS.Run(ctx, code, input)
		if err != nil {
			return nil, fmt.Errorf("JS Error: %s", err)
		}
		return out, nil
	case "python":
		out, err := ec.Python.Run(ctx, code, input)
		if err != nil {
			return nil, fmt.Errorf("Python Error: %s", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("Unsupported language: %s", language)
	}
}
