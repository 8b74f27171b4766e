package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"wa-gateway/internal/models"
	"wa-gateway/internal/repositories"
)

// MessageRepositoryMock is a testify mock for repositories.MessageRepository.
type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Insert(ctx context.Context, msg models.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) GetByMessageID(ctx context.Context, tenantID, messageID string) (models.Message, error) {
	args := m.Called(ctx, tenantID, messageID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) AdvanceStatus(ctx context.Context, tenantID, messageID string, status models.Status) (models.Message, error) {
	args := m.Called(ctx, tenantID, messageID, status)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) ListByChat(ctx context.Context, tenantID, chatID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, tenantID, chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) MarkChatRead(ctx context.Context, tenantID, chatID string) error {
	args := m.Called(ctx, tenantID, chatID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetMediaProcessed(ctx context.Context, messageID, publicURL, storageID string, sizeBytes int64) error {
	args := m.Called(ctx, messageID, publicURL, storageID, sizeBytes)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetMediaError(ctx context.Context, messageID, detail string) error {
	args := m.Called(ctx, messageID, detail)
	return args.Error(0)
}

// ChatRepositoryMock is a testify mock for repositories.ChatRepository.
type ChatRepositoryMock struct {
	mock.Mock
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)

func (m *ChatRepositoryMock) ApplyMessage(ctx context.Context, tenantID, chatID, participant string, ts time.Time, preview string, incrementUnread bool, meta models.Metadata) (models.Chat, error) {
	args := m.Called(ctx, tenantID, chatID, participant, ts, preview, incrementUnread, meta)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) Get(ctx context.Context, tenantID, chatID string) (models.Chat, error) {
	args := m.Called(ctx, tenantID, chatID)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) List(ctx context.Context, tenantID string, limit int, unreadOnly bool) ([]models.Chat, error) {
	args := m.Called(ctx, tenantID, limit, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) MarkRead(ctx context.Context, tenantID, chatID string) error {
	args := m.Called(ctx, tenantID, chatID)
	return args.Error(0)
}

// ConfigRepositoryMock is a testify mock for repositories.ConfigRepository.
type ConfigRepositoryMock struct {
	mock.Mock
}

var _ repositories.ConfigRepository = (*ConfigRepositoryMock)(nil)

func (m *ConfigRepositoryMock) FetchActiveConfig(ctx context.Context, schemaName string) (models.TenantSecrets, error) {
	args := m.Called(ctx, schemaName)
	return args.Get(0).(models.TenantSecrets), args.Error(1)
}
