// Package httpclient adapts net/http to the engine's HttpClient
// capability.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/weftworks/weft/internal/engine"
)

// Client performs outbound HTTP calls for workflow nodes. External
// services are untrusted; the timeout bounds a whole request including
// body read.
type Client struct {
	http *http.Client
}

func New() *Client {
	return &Client{
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) Do(ctx context.Context, req *engine.HttpRequest) (*engine.HttpResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for _, h := range req.Headers {
		httpReq.Header.Set(h[0], h[1])
	}
	if req.Basic != nil {
		httpReq.SetBasicAuth(req.Basic.User, req.Basic.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var headers [][2]string
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, [2]string{name, v})
		}
	}

	return &engine.HttpResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       respBody,
	}, nil
}
