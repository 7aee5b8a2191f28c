package platform

import "context"

// MockClient is a mock implementation of the Client interface for testing.
// Uses function fields to allow tests to inject custom behavior.
type MockClient struct {
	BanFunc                func(ctx context.Context, serverID, userID, reason string, retentionDays int) error
	UnbanFunc              func(ctx context.Context, serverID, userID string) error
	DeleteMessageFunc      func(ctx context.Context, channelID, messageID string) error
	BulkDeleteMessagesFunc func(ctx context.Context, channelID string, count int) error
	ResolveInviteFunc      func(ctx context.Context, code string) (*Invite, error)
	SendMessageFunc        func(ctx context.Context, channelID, content string) error
	SendDirectMessageFunc  func(ctx context.Context, userID, content string) error
	FetchUserFunc          func(ctx context.Context, userID string) (*User, error)
	FetchMemberFunc        func(ctx context.Context, serverID, userID string) (*Member, error)
	CreateWebhookFunc      func(ctx context.Context, channelID, name string) (*Webhook, error)
	DeleteWebhookFunc      func(ctx context.Context, webhookID string) error
	ExecuteWebhookFunc     func(ctx context.Context, webhookID, token, content string) error
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Ban(ctx context.Context, serverID, userID, reason string, retentionDays int) error {
	if m.BanFunc != nil {
		return m.BanFunc(ctx, serverID, userID, reason, retentionDays)
	}
	return nil
}

func (m *MockClient) Unban(ctx context.Context, serverID, userID string) error {
	if m.UnbanFunc != nil {
		return m.UnbanFunc(ctx, serverID, userID)
	}
	return nil
}

func (m *MockClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if m.DeleteMessageFunc != nil {
		return m.DeleteMessageFunc(ctx, channelID, messageID)
	}
	return nil
}

func (m *MockClient) BulkDeleteMessages(ctx context.Context, channelID string, count int) error {
	if m.BulkDeleteMessagesFunc != nil {
		return m.BulkDeleteMessagesFunc(ctx, channelID, count)
	}
	return nil
}

func (m *MockClient) ResolveInvite(ctx context.Context, code string) (*Invite, error) {
	if m.ResolveInviteFunc != nil {
		return m.ResolveInviteFunc(ctx, code)
	}
	return nil, ErrNotFound
}

func (m *MockClient) SendMessage(ctx context.Context, channelID, content string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, channelID, content)
	}
	return nil
}

func (m *MockClient) SendDirectMessage(ctx context.Context, userID, content string) error {
	if m.SendDirectMessageFunc != nil {
		return m.SendDirectMessageFunc(ctx, userID, content)
	}
	return nil
}

func (m *MockClient) FetchUser(ctx context.Context, userID string) (*User, error) {
	if m.FetchUserFunc != nil {
		return m.FetchUserFunc(ctx, userID)
	}
	return &User{ID: userID}, nil
}

func (m *MockClient) FetchMember(ctx context.Context, serverID, userID string) (*Member, error) {
	if m.FetchMemberFunc != nil {
		return m.FetchMemberFunc(ctx, serverID, userID)
	}
	return nil, ErrNotFound
}

func (m *MockClient) CreateWebhook(ctx context.Context, channelID, name string) (*Webhook, error) {
	if m.CreateWebhookFunc != nil {
		return m.CreateWebhookFunc(ctx, channelID, name)
	}
	return &Webhook{ID: "hook-" + channelID, ChannelID: channelID, Token: "token"}, nil
}

func (m *MockClient) DeleteWebhook(ctx context.Context, webhookID string) error {
	if m.DeleteWebhookFunc != nil {
		return m.DeleteWebhookFunc(ctx, webhookID)
	}
	return nil
}

func (m *MockClient) ExecuteWebhook(ctx context.Context, webhookID, token, content string) error {
	if m.ExecuteWebhookFunc != nil {
		return m.ExecuteWebhookFunc(ctx, webhookID, token, content)
	}
	return nil
}
