package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

type codeFunc func(ctx context.Context, code string, input any) (any, error)

func (f codeFunc) Run(ctx context.Context, code string, input any) (any, error) {
	return f(ctx, code, input)
}

func TestHTTPRequestInterpolatesAndParses(t *testing.T) {
	var got *HttpRequest
	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, req *HttpRequest) (*HttpResponse, error) {
			got = req
			return &HttpResponse{StatusCode: 200, Body: []byte(`{"ok":true}`)}, nil
		},
	}}}
	node := &models.Node{Kind: "http-request", Config: map[string]any{
		"url":    "https://api.test/users/{{ $input.id }}",
		"method": "post",
		"body":   `{"name":"{{ $input.name }}"}`,
	}}

	out, err := handleHTTPRequest(context.Background(), ec, node, map[string]any{"id": "7", "name": "Ada"})
	if err != nil {
		t.Fatalf("handleHTTPRequest() error = %v", err)
	}
	if got.URL != "https://api.test/users/7" {
		t.Errorf("url = %q", got.URL)
	}
	if got.Method != "POST" {
		t.Errorf("method = %q, want POST", got.Method)
	}
	if string(got.Body) != `{"name":"Ada"}` {
		t.Errorf("body = %q", got.Body)
	}
	if len(got.Headers) != 1 || got.Headers[0] != [2]string{"Content-Type", "application/json"} {
		t.Errorf("headers = %v", got.Headers)
	}
	if out.(map[string]any)["ok"] != true {
		t.Errorf("output = %v, want parsed JSON body", out)
	}
}

func TestHTTPRequestInvalidMethodFallsBackToGet(t *testing.T) {
	var got *HttpRequest
	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, req *HttpRequest) (*HttpResponse, error) {
			got = req
			return &HttpResponse{StatusCode: 200, Body: []byte(`null`)}, nil
		},
	}}}
	node := &models.Node{Kind: "http-request", Config: map[string]any{
		"url":    "https://api.test",
		"method": "YEET",
	}}

	if _, err := handleHTTPRequest(context.Background(), ec, node, nil); err != nil {
		t.Fatalf("handleHTTPRequest() error = %v", err)
	}
	if got.Method != "GET" {
		t.Errorf("method = %q, want GET", got.Method)
	}
}

func TestHTTPRequestNonJSONBodyReturnedAsString(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, _ *HttpRequest) (*HttpResponse, error) {
			return &HttpResponse{StatusCode: 200, Body: []byte("plain text")}, nil
		},
	}}}
	node := &models.Node{Kind: "http-request", Config: map[string]any{"url": "https://api.test"}}

	out, err := handleHTTPRequest(context.Background(), ec, node, nil)
	if err != nil {
		t.Fatalf("handleHTTPRequest() error = %v", err)
	}
	if out != "plain text" {
		t.Errorf("output = %v, want the raw body string", out)
	}
}

func TestHTTPRequestFullResponse(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, _ *HttpRequest) (*HttpResponse, error) {
			return &HttpResponse{StatusCode: 404, Body: []byte(`{"error":"missing"}`)}, nil
		},
	}}}
	node := &models.Node{Kind: "http-request", Config: map[string]any{
		"url":          "https://api.test",
		"fullResponse": true,
	}}

	out, err := handleHTTPRequest(context.Background(), ec, node, nil)
	if err != nil {
		t.Fatalf("handleHTTPRequest() error = %v", err)
	}
	m := out.(map[string]any)
	if m["status_code"] != 404 {
		t.Errorf("status_code = %v", m["status_code"])
	}
}

func TestHTTPRequestErrors(t *testing.T) {
	node := &models.Node{Kind: "http-request", Config: map[string]any{}}
	if _, err := handleHTTPRequest(context.Background(), nil, node, nil); err == nil || err.Error() != "URL not specified" {
		t.Errorf("error = %v, want URL not specified", err)
	}

	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, _ *HttpRequest) (*HttpResponse, error) {
			return nil, fmt.Errorf("dial tcp: refused")
		},
	}}}
	node = &models.Node{Kind: "http-request", Config: map[string]any{"url": "https://api.test"}}
	if _, err := handleHTTPRequest(context.Background(), ec, node, nil); err == nil || err.Error() != "HTTP Error: dial tcp: refused" {
		t.Errorf("error = %v, want the wrapped transport error", err)
	}
}

func TestHTTPRequestBasicAuth(t *testing.T) {
	var got *HttpRequest
	ec := &Context{Capabilities: Capabilities{HTTP: &fakeHTTP{
		do: func(_ context.Context, req *HttpRequest) (*HttpResponse, error) {
			got = req
			return &HttpResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
		},
	}}}
	node := &models.Node{Kind: "http-request", Config: map[string]any{
		"url":            "https://api.test",
		"authentication": "basicAuth",
		"user":           "svc",
		"password":       "hunter2",
	}}

	if _, err := handleHTTPRequest(context.Background(), ec, node, nil); err != nil {
		t.Fatalf("handleHTTPRequest() error = %v", err)
	}
	if got.Basic == nil || got.Basic.User != "svc" || got.Basic.Password != "hunter2" {
		t.Errorf("basic auth = %+v", got.Basic)
	}
}

func TestCodeDispatchesOnLanguage(t *testing.T) {
	jsRan, pyRan := false, false
	ec := &Context{Capabilities: Capabilities{
		JS: codeFunc(func(_ context.Context, code string, input any) (any, error) {
			jsRan = true
			return map[string]any{"lang": "js"}, nil
		}),
		Python: codeFunc(func(_ context.Context, code string, input any) (any, error) {
			pyRan = true
			return map[string]any{"lang": "py"}, nil
		}),
	}}

	node := &models.Node{Kind: "code", Config: map[string]any{"code": "return 1;"}}
	if _, err := handleCode(context.Background(), ec, node, nil); err != nil {
		t.Fatalf("handleCode() error = %v", err)
	}
	if !jsRan || pyRan {
		t.Error("default language should be javascript")
	}

	node = &models.Node{Kind: "code", Config: map[string]any{"code": "return 1", "language": "python"}}
	if _, err := handleCode(context.Background(), ec, node, nil); err != nil {
		t.Fatalf("handleCode() error = %v", err)
	}
	if !pyRan {
		t.Error("python language should use the python runner")
	}
}

func TestCodeWrapsRunnerErrors(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{
		JS: codeFunc(func(_ context.Context, _ string, _ any) (any, error) {
			return nil, fmt.Errorf("x is not defined")
		}),
	}}
	node := &models.Node{Kind: "code", Config: map[string]any{"code": "x"}}

	_, err := handleCode(context.Background(), ec, node, nil)
	if err == nil || err.Error() != "JS Error: x is not defined" {
		t.Errorf("error = %v", err)
	}
}

func TestCodeUnsupportedLanguage(t *testing.T) {
	node := &models.Node{Kind: "code", Config: map[string]any{"language": "ruby"}}

	_, err := handleCode(context.Background(), nil, node, nil)
	if err == nil || err.Error() != "Unsupported language: ruby" {
		t.Errorf("error = %v", err)
	}
}

func TestRSSFeedRead(t *testing.T) {
	ec := &Context{Capabilities: Capabilities{
		HTTP: &fakeHTTP{do: func(_ context.Context, req *HttpRequest) (*HttpResponse, error) {
			return &HttpResponse{StatusCode: 200, Body: []byte("<rss/>")}, nil
		}},
		Feeds: &fakeFeeds{feed: &Feed{Items: []FeedItem{
			{ID: "1", Title: "Post", Link: "http://x/1", Published: "2025-06-01T00:00:00Z", Author: "ada"},
		}}},
	}}
	node := &models.Node{Kind: "rss-feed-read", Config: map[string]any{"url": "http://x/rss"}}

	out, err := handleRSSFeedRead(context.Background(), ec, node, nil)
	if err != nil {
		t.Fatalf("handleRSSFeedRead() error = %v", err)
	}
	items := out.([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	item := items[0].(map[string]any)
	if item["title"] != "Post" || item["author"] != "ada" {
		t.Errorf("item = %v", item)
	}
}

func TestRSSFeedReadErrors(t *testing.T) {
	node := &models.Node{Kind: "rss-feed-read", Config: map[string]any{}}
	if _, err := handleRSSFeedRead(context.Background(), nil, node, nil); err == nil || err.Error() != "URL not specified" {
		t.Errorf("error = %v", err)
	}

	ec := &Context{Capabilities: Capabilities{
		HTTP: &fakeHTTP{do: func(_ context.Context, _ *HttpRequest) (*HttpResponse, error) {
			return &HttpResponse{StatusCode: 200, Body: []byte("not xml")}, nil
		}},
		Feeds: &fakeFeeds{err: fmt.Errorf("no feed found")},
	}}
	node = &models.Node{Kind: "rss-feed-read", Config: map[string]any{"url": "http://x/rss"}}
	if _, err := handleRSSFeedRead(context.Background(), ec, node, nil); err == nil || err.Error() != "Feed Parsing Error: no feed found" {
		t.Errorf("error = %v", err)
	}
}
