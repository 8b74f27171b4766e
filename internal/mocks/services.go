package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"wa-gateway/internal/auth"
	"wa-gateway/internal/models"
	"wa-gateway/internal/whatsapp"
)

// MediaAPIMock is a testify mock for whatsapp.MediaAPI.
type MediaAPIMock struct {
	mock.Mock
}

var _ whatsapp.MediaAPI = (*MediaAPIMock)(nil)

func (m *MediaAPIMock) ResolveDownloadURL(ctx context.Context, mediaID, accessToken string) (string, error) {
	args := m.Called(ctx, mediaID, accessToken)
	return args.String(0), args.Error(1)
}

func (m *MediaAPIMock) Download(ctx context.Context, url, accessToken string) ([]byte, error) {
	args := m.Called(ctx, url, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// VerifierMock is a testify mock for auth.Verifier.
type VerifierMock struct {
	mock.Mock
}

var _ auth.Verifier = (*VerifierMock)(nil)

func (m *VerifierMock) Verify(token string) (auth.Principal, error) {
	args := m.Called(token)
	return args.Get(0).(auth.Principal), args.Error(1)
}

// NotifierMock satisfies the ingestion and media notifier contracts.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) BroadcastNewMessage(tenantID string, msg models.Message) {
	m.Called(tenantID, msg)
}

func (m *NotifierMock) BroadcastStatusUpdate(tenantID string, update models.StatusUpdate) {
	m.Called(tenantID, update)
}

func (m *NotifierMock) BroadcastChatUpdated(tenantID string, update models.ChatUpdate) {
	m.Called(tenantID, update)
}

func (m *NotifierMock) BroadcastMediaProcessed(tenantID string, result models.MediaResult) {
	m.Called(tenantID, result)
}

// PublisherMock is a testify mock for the broker publisher contract.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
