package engine

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

// handleRSSFeedRead fetches a feed URL and returns its entries as a list
// of plain objects. Field names match what the agent's rss-read-tool
// exposes so both paths produce the same shape.
func handleRSSFeedRead(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	urlRaw, err := cfgRequiredString(node, "url", "URL")
	if err != nil {
		return nil, err
	}
	return fetchFeedItems(ctx, ec, Interpolate(urlRaw, input))
}

// fetchFeedItems is shared between the rss-feed-read node and the agent's
// built-in rss-read-tool.
func fetchFeedItems(ctx context.Context, ec *Context, url string) (any, error) {
	resp, err := ec.HTTP.Do(ctx, &HttpRequest{Method: "GET", URL: url})
	if err != nil {
		return nil, fmt.Errorf("Request Error: %s", err)
	}

	feed, err := ec.Feeds.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Feed Parsing Error: %s", err)
	}

	items := make([]any, 0, len(feed.Items))
	for _, entry := range feed.Items {
		items = append(items, map[string]any{
			"id":        entry.ID,
			"title":     entry.Title,
			"link":      entry.Link,
			"summary":   entry.Summary,
			"content":   entry.Content,
			"published": entry.Published,
			"updated":   entry.Updated,
			"author":    entry.Author,
		})
	}
	return items, nil
}
