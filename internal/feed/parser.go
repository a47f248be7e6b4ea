// Package feed adapts gofeed to the engine's FeedParser capability.
package feed

import (
	"bytes"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/weftworks/weft/internal/engine"
)

// Parser handles RSS, Atom and JSON feeds. A gofeed parser is not safe
// for concurrent use, so one is created per call.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(data []byte) (*engine.Feed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	out := &engine.Feed{Items: make([]engine.FeedItem, 0, len(parsed.Items))}
	for _, item := range parsed.Items {
		fi := engine.FeedItem{
			ID:        item.GUID,
			Title:     item.Title,
			Link:      item.Link,
			Summary:   item.Description,
			Content:   item.Content,
			Published: timestamp(item.PublishedParsed, item.Published),
			Updated:   timestamp(item.UpdatedParsed, item.Updated),
		}
		if len(item.Authors) > 0 {
			fi.Author = item.Authors[0].Name
		}
		out.Items = append(out.Items, fi)
	}
	return out, nil
}

// timestamp prefers the parsed time rendered as RFC 3339, falling back
// to whatever string the feed carried.
func timestamp(parsed *time.Time, raw string) string {
	if parsed != nil {
		return parsed.UTC().Format(time.RFC3339)
	}
	return raw
}
