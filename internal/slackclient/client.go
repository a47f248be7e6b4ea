// Package slackclient implements the engine's SlackClient capability on
// the Slack Web API.
package slackclient

import (
	"context"
	"encoding/json"

	"github.com/slack-go/slack"

	"github.com/weftworks/weft/internal/engine"
)

// Client wraps slack-go. Tokens arrive per call because they are
// resolved from workflow credentials at execution time; an API client is
// constructed per invocation.
type Client struct{}

func New() *Client {
	return &Client{}
}

var _ engine.SlackClient = (*Client)(nil)

func (c *Client) api(token string) *slack.Client {
	return slack.New(token)
}

func (c *Client) PostMessage(ctx context.Context, token, channel, text string, blocks []any) (map[string]any, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		parsed, err := parseBlocks(blocks)
		if err != nil {
			return nil, err
		}
		opts = append(opts, slack.MsgOptionBlocks(parsed...))
	}

	respChannel, ts, err := c.api(token).PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "channel": respChannel, "ts": ts}, nil
}

func (c *Client) PostEphemeral(ctx context.Context, token, channel, user, text string) (map[string]any, error) {
	ts, err := c.api(token).PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false))
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "message_ts": ts}, nil
}

func (c *Client) UpdateMessage(ctx context.Context, token, channel, ts, text string) (map[string]any, error) {
	respChannel, respTS, _, err := c.api(token).UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "channel": respChannel, "ts": respTS}, nil
}

func (c *Client) DeleteMessage(ctx context.Context, token, channel, ts string) (map[string]any, error) {
	respChannel, respTS, err := c.api(token).DeleteMessageContext(ctx, channel, ts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "channel": respChannel, "ts": respTS}, nil
}

func (c *Client) SearchMessages(ctx context.Context, token, query string) (map[string]any, error) {
	results, err := c.api(token).SearchMessagesContext(ctx, query, slack.NewSearchParameters())
	if err != nil {
		return nil, err
	}
	return envelope("messages", results)
}

func (c *Client) CreateChannel(ctx context.Context, token, name string, private bool) (map[string]any, error) {
	channel, err := c.api(token).CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   private,
	})
	if err != nil {
		return nil, err
	}
	return envelope("channel", channel)
}

func (c *Client) ArchiveChannel(ctx context.Context, token, channel string) (map[string]any, error) {
	if err := c.api(token).ArchiveConversationContext(ctx, channel); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (c *Client) InviteToChannel(ctx context.Context, token, channel string, users []string) (map[string]any, error) {
	resp, err := c.api(token).InviteUsersToConversationContext(ctx, channel, users...)
	if err != nil {
		return nil, err
	}
	return envelope("channel", resp)
}

func (c *Client) ListChannels(ctx context.Context, token string) (map[string]any, error) {
	channels, _, err := c.api(token).GetConversationsContext(ctx, &slack.GetConversationsParameters{})
	if err != nil {
		return nil, err
	}
	return envelope("channels", channels)
}

func (c *Client) UserInfo(ctx context.Context, token, user string) (map[string]any, error) {
	info, err := c.api(token).GetUserInfoContext(ctx, user)
	if err != nil {
		return nil, err
	}
	return envelope("user", info)
}

func (c *Client) ListUsers(ctx context.Context, token string) (map[string]any, error) {
	users, err := c.api(token).GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}
	return envelope("members", users)
}

// parseBlocks converts the workflow's raw block JSON into typed Block Kit
// structures via slack-go's own unmarshaller.
func parseBlocks(blocks []any) ([]slack.Block, error) {
	raw, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return nil, err
	}
	var holder struct {
		Blocks slack.Blocks `json:"blocks"`
	}
	if err := json.Unmarshal(raw, &holder); err != nil {
		return nil, err
	}
	return holder.Blocks.BlockSet, nil
}

// envelope renders an API payload in the ok-wrapper shape workflows read.
func envelope(key string, payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var dynamic any
	if err := json.Unmarshal(raw, &dynamic); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, key: dynamic}, nil
}
