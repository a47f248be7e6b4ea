package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weftworks/weft/pkg/models"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// handleHTTPRequest performs one outbound HTTP call. The URL and body are
// interpolated against the input; the response body is returned as parsed
// JSON when possible, as a string otherwise. fullResponse=true wraps the
// body with the status code.
func handleHTTPRequest(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	urlRaw, err := cfgRequiredString(node, "url", "URL")
	if err != nil {
		return nil, err
	}
	url := Interpolate(urlRaw, input)

	method := strings.ToUpper(cfgString(node, "method", "GET"))
	if !allowedMethods[method] {
		method = "GET"
	}

	req := &HttpRequest{Method: method, URL: url}

	if cfgString(node, "authentication", "") == "basicAuth" {
		req.Basic = &BasicAuth{
			User:     cfgString(node, "user", ""),
			Password: cfgString(node, "password", ""),
		}
	}

	if bodyRaw := cfgString(node, "body", ""); bodyRaw != "" {
		req.Body = []byte(Interpolate(bodyRaw, input))
		req.Headers = append(req.Headers, [2]string{"Content-Type", "application/json"})
	}

	resp, err := ec.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP Error: %s", err)
	}

	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		body = string(resp.Body)
	}

	if cfgBool(node, "fullResponse", false) {
		return map[string]any{"status_code": resp.StatusCode, "body": body}, nil
	}
	return body, nil
}
