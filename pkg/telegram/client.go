package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sietchlabs/scraper-go/pkg/request"
	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Client exposes the two platform operations the pipeline needs: fetching
// pages of group members and inviting a user into a channel. All network
// behavior (retries, backoff, stealth, identity rotation) comes from the
// request engine the client is constructed with.
type Client struct {
	config *Config
	engine *request.Engine
	logger *logrus.Logger
}

// NewClient creates a platform client over the given request engine.
func NewClient(config *Config, engine *request.Engine) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("telegram: invalid config: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("telegram: request engine is required")
	}
	return &Client{
		config: config,
		engine: engine,
		logger: config.Logger,
	}, nil
}

// Start acquires the underlying transport resource.
func (c *Client) Start() error { return c.engine.Start() }

// Stop releases the underlying transport resource.
func (c *Client) Stop() error { return c.engine.Stop() }

// BytesTransferred reports the cumulative response bytes read by the
// client's engine.
func (c *Client) BytesTransferred() int64 { return c.engine.BytesTransferred() }

// FetchMembers retrieves one page of members for a group. An empty cursor
// requests the first page. Exhausted retries surface as
// request.ErrNoResponse so callers can treat the group as skipped.
func (c *Client) FetchMembers(ctx context.Context, group, cursor string, limit int) (*types.MemberPage, error) {
	target := fmt.Sprintf("%s/groups/%s/members?limit=%d", c.config.APIEndpoint, url.PathEscape(group), limit)
	if cursor != "" {
		target += "&cursor=" + url.QueryEscape(cursor)
	}

	body, err := c.engine.Execute(ctx, target, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	var page types.MemberPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("telegram: decoding member page: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"group":   group,
		"members": len(page.Members),
	}).Debug("Fetched member page")

	return &page, nil
}

// Invite asks the platform to add a user to the target channel. Success is
// a 2xx response; exhausted retries surface as request.ErrNoResponse.
func (c *Client) Invite(ctx context.Context, channel string, uid int64) error {
	target := fmt.Sprintf("%s/bot%s/inviteToChannel", c.config.APIEndpoint, c.config.BotToken)
	payload := map[string]any{
		"chat_id": channel,
		"user_id": uid,
	}

	if _, err := c.engine.Execute(ctx, target, http.MethodPost, payload); err != nil {
		return err
	}
	return nil
}
