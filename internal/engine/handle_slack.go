package engine

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
)

// handleSlack dispatches on resource/operation the way the Slack Web API
// groups its methods. The raw API envelope is returned so workflows can
// read channel, ts, members and so on directly. sendAndWait posts an
// interactive message and emits the wait marker that suspends the run
// until the interactivity webhook resumes it.
func handleSlack(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	resource := cfgString(node, "resource", "message")
	operation := cfgString(node, "operation", "post")

	token, err := ResolveAPIKey(ctx, ec, node, "SLACK_TOKEN")
	if err != nil {
		return nil, err
	}

	switch resource {
	case "message":
		return slackMessage(ctx, ec, node, input, token, operation)
	case "channel":
		return slackChannel(ctx, ec, node, input, token, operation)
	case "user":
		return slackUser(ctx, ec, node, input, token, operation)
	default:
		return nil, fmt.Errorf("Unsupported Slack resource: %s", resource)
	}
}

func slackMessage(ctx context.Context, ec *Context, node *models.Node, input any, token, operation string) (any, error) {
	switch operation {
	case "post", "postEphemeral", "sendAndWait":
		channelRaw := cfgString(node, "channel", cfgString(node, "channelId", ""))
		if channelRaw == "" {
			return nil, fmt.Errorf("Channel not specified")
		}
		channel := Interpolate(channelRaw, input)
		text := Interpolate(cfgString(node, "text", ""), input)

		if operation == "postEphemeral" {
			userRaw, ok := node.Config["user"].(string)
			if !ok || userRaw == "" {
				return nil, fmt.Errorf("User not specified for ephemeral message")
			}
			res, err := ec.Slack.PostEphemeral(ctx, token, channel, Interpolate(userRaw, input), text)
			if err != nil {
				return nil, fmt.Errorf("Slack API Error: %s", err)
			}
			return res, nil
		}

		blocks, _ := node.Config["blocks"].([]any)
		if operation == "sendAndWait" && blocks == nil {
			blocks = approvalBlocks(node, text)
			// Top-level text doubles as the notification fallback.
			text = cfgString(node, "approveLabel", "Approve")
		}

		res, err := ec.Slack.PostMessage(ctx, token, channel, text, blocks)
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		if operation == "sendAndWait" {
			return map[string]any{
				"__wait":  true,
				"type":    "slack_interactive",
				"channel": channel,
				"ts":      res["ts"],
			}, nil
		}
		return res, nil

	case "update":
		channel, ts, err := slackChannelTS(node, input)
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.UpdateMessage(ctx, token, channel, ts, Interpolate(cfgString(node, "text", ""), input))
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "delete":
		channel, ts, err := slackChannelTS(node, input)
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.DeleteMessage(ctx, token, channel, ts)
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "search":
		query, err := cfgRequiredString(node, "query", "Query")
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.SearchMessages(ctx, token, Interpolate(query, input))
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	default:
		return nil, fmt.Errorf("Unsupported Slack operation: %s", operation)
	}
}

func slackChannel(ctx context.Context, ec *Context, node *models.Node, input any, token, operation string) (any, error) {
	switch operation {
	case "create":
		name, err := cfgRequiredString(node, "name", "Channel name")
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.CreateChannel(ctx, token, Interpolate(name, input), cfgBool(node, "isPrivate", false))
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "archive":
		channel, err := cfgRequiredString(node, "channelId", "Channel")
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.ArchiveChannel(ctx, token, Interpolate(channel, input))
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "invite":
		channel, err := cfgRequiredString(node, "channelId", "Channel")
		if err != nil {
			return nil, err
		}
		var users []string
		if raw, ok := node.Config["users"].([]any); ok {
			for _, u := range raw {
				if s, ok := u.(string); ok {
					users = append(users, Interpolate(s, input))
				}
			}
		} else if s := cfgString(node, "users", ""); s != "" {
			users = append(users, Interpolate(s, input))
		}
		res, err := ec.Slack.InviteToChannel(ctx, token, Interpolate(channel, input), users)
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "getAll", "list":
		res, err := ec.Slack.ListChannels(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	default:
		return nil, fmt.Errorf("Unsupported Slack operation: %s", operation)
	}
}

func slackUser(ctx context.Context, ec *Context, node *models.Node, input any, token, operation string) (any, error) {
	switch operation {
	case "info":
		user, err := cfgRequiredString(node, "user", "User ID")
		if err != nil {
			return nil, err
		}
		res, err := ec.Slack.UserInfo(ctx, token, Interpolate(user, input))
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	case "getAll", "list":
		res, err := ec.Slack.ListUsers(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("Slack API Error: %s", err)
		}
		return res, nil

	default:
		return nil, fmt.Errorf("Unsupported Slack operation: %s", operation)
	}
}

func slackChannelTS(node *models.Node, input any) (string, string, error) {
	channel, err := cfgRequiredString(node, "channelId", "Channel")
	if err != nil {
		return "", "", err
	}
	ts, ok := node.Config["ts"].(string)
	if !ok || ts == "" {
		return "", "", fmt.Errorf("TS not specified")
	}
	return Interpolate(channel, input), Interpolate(ts, input), nil
}

// approvalBlocks builds the default Approve / Reject action pair used by
// sendAndWait when the workflow supplies no blocks of its own.
func approvalBlocks(node *models.Node, text string) []any {
	approve := cfgString(node, "approveLabel", "Approve")
	reject := cfgString(node, "rejectLabel", "Reject")
	return []any{
		map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": text},
		},
		map[string]any{
			"type": "actions",
			"elements": []any{
				map[string]any{
					"type":      "button",
					"text":      map[string]any{"type": "plain_text", "text": approve},
					"style":     "primary",
					"action_id": "approve",
				},
				map[string]any{
					"type":      "button",
					"text":      map[string]any{"type": "plain_text", "text": reject},
					"style":     "danger",
					"action_id": "reject",
				},
			},
		},
	}
}
