package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
)

// RESTClient implements Client against the platform's HTTP API.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient creates a platform REST client.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

var _ Client = (*RESTClient)(nil)

// do performs a JSON request and decodes the response into out (if non-nil).
func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform returned %d: %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// banOptions are the query parameters for a ban request.
type banOptions struct {
	Reason        string `url:"reason,omitempty"`
	RetentionDays int    `url:"delete_message_days,omitempty"`
}

func (c *RESTClient) Ban(ctx context.Context, serverID, userID, reason string, retentionDays int) error {
	q, err := query.Values(banOptions{Reason: reason, RetentionDays: retentionDays})
	if err != nil {
		return fmt.Errorf("failed to encode ban options: %w", err)
	}
	path := fmt.Sprintf("/servers/%s/bans/%s", serverID, userID)
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

func (c *RESTClient) Unban(ctx context.Context, serverID, userID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/servers/%s/bans/%s", serverID, userID), nil, nil)
}

func (c *RESTClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, nil)
}

func (c *RESTClient) BulkDeleteMessages(ctx context.Context, channelID string, count int) error {
	body := struct {
		Count int `json:"count"`
	}{Count: count}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages/bulk-delete", channelID), body, nil)
}

func (c *RESTClient) ResolveInvite(ctx context.Context, code string) (*Invite, error) {
	var invite Invite
	if err := c.do(ctx, http.MethodGet, "/invites/"+url.PathEscape(code), nil, &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

func (c *RESTClient) SendMessage(ctx context.Context, channelID, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), body, nil)
}

func (c *RESTClient) SendDirectMessage(ctx context.Context, userID, content string) error {
	// Open (or reuse) the DM channel, then post into it.
	var ch struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%s/channels", userID), nil, &ch); err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	return c.SendMessage(ctx, ch.ID, content)
}

func (c *RESTClient) FetchUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *RESTClient) FetchMember(ctx context.Context, serverID, userID string) (*Member, error) {
	var member Member
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/servers/%s/members/%s", serverID, userID), nil, &member); err != nil {
		return nil, err
	}
	member.ServerID = serverID
	return &member, nil
}

func (c *RESTClient) CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: name}
	var hook Webhook
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/webhooks", channelID), body, &hook); err != nil {
		return nil, err
	}
	hook.ChannelID = channelID
	return &hook, nil
}

func (c *RESTClient) DeleteWebhook(ctx context.Context, webhookID string) error {
	return c.do(ctx, http.MethodDelete, "/webhooks/"+webhookID, nil, nil)
}

func (c *RESTClient) ExecuteWebhook(ctx context.Context, webhookID, token, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/webhooks/%s/%s", webhookID, token), body, nil)
}
