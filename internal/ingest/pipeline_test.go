package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wa-gateway/internal/media"
	"wa-gateway/internal/mocks"
	"wa-gateway/internal/models"
	"wa-gateway/internal/repositories"
	"wa-gateway/internal/whatsapp"
)

var testTenant = models.TenantIdentity{ID: "clinic_a", Name: "Clinic A", Known: true, Active: true}

var _ Notifier = (*mocks.NotifierMock)(nil)

type enqueuerMock struct {
	mock.Mock
}

var _ Enqueuer = (*enqueuerMock)(nil)

func (m *enqueuerMock) Enqueue(job media.Job) {
	m.Called(job)
}

func newTestPipeline(messages *mocks.MessageRepositoryMock, chats *mocks.ChatRepositoryMock, notifier *mocks.NotifierMock, enricher *enqueuerMock) *Pipeline {
	return NewPipeline(messages, chats, notifier, enricher, zerolog.Nop())
}

func textWebhook(messageID, from, body string) whatsapp.Webhook {
	return whatsapp.Webhook{
		Object: "whatsapp_business_account",
		Entry: []whatsapp.Entry{{
			ID: "entry-1",
			Changes: []whatsapp.Change{{
				Field: whatsapp.FieldMessages,
				Value: whatsapp.ChangeValue{
					Metadata: whatsapp.Metadata{PhoneNumberID: "15550001111"},
					Contacts: []whatsapp.Contact{func() whatsapp.Contact {
						c := whatsapp.Contact{WaID: from}
						c.Profile.Name = "Ada"
						return c
					}()},
					Messages: []whatsapp.Message{{
						From:      from,
						ID:        messageID,
						Timestamp: "1700000000",
						Type:      "text",
						Text:      &whatsapp.TextBody{Body: body},
					}},
				},
			}},
		}},
	}
}

func TestIngestTextMessage(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.MessageID == "wamid.1" &&
			m.ChatID == "491700000001" &&
			m.TenantID == "clinic_a" &&
			m.Direction == models.DirectionIncoming &&
			m.Status == models.StatusReceived &&
			m.Content.Text != nil && m.Content.Text.Body == "hello"
	})).Return(true, nil).Once()

	chats.On("ApplyMessage", mock.Anything, "clinic_a", "491700000001", "491700000001",
		time.Unix(1700000000, 0).UTC(), "hello", true, mock.MatchedBy(func(meta models.Metadata) bool {
			return meta["contact_name"] == "Ada"
		})).
		Return(models.Chat{ChatID: "491700000001", TenantID: "clinic_a", UnreadCount: 3, LastMessageContent: "hello"}, nil).Once()

	notifier.On("BroadcastNewMessage", "clinic_a", mock.Anything).Once()
	notifier.On("BroadcastChatUpdated", "clinic_a", mock.MatchedBy(func(u models.ChatUpdate) bool {
		return u.ChatID == "491700000001" && u.UnreadCount == 3
	})).Once()

	pipeline.Ingest(context.Background(), textWebhook("wamid.1", "491700000001", "hello"), testTenant)

	messages.AssertExpectations(t)
	chats.AssertExpectations(t)
	notifier.AssertExpectations(t)
	enricher.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestIngestDuplicateMessageIsNoOp(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	messages.On("Insert", mock.Anything, mock.Anything).Return(false, nil).Once()

	pipeline.Ingest(context.Background(), textWebhook("wamid.dup", "491700000001", "again"), testTenant)

	messages.AssertExpectations(t)
	chats.AssertNotCalled(t, "ApplyMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "BroadcastNewMessage", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "BroadcastChatUpdated", mock.Anything, mock.Anything)
}

func TestIngestPersistErrorStillAcks(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	messages.On("Insert", mock.Anything, mock.Anything).Return(false, assert.AnError).Once()

	pipeline.Ingest(context.Background(), textWebhook("wamid.err", "491700000001", "boom"), testTenant)

	messages.AssertExpectations(t)
	notifier.AssertNotCalled(t, "BroadcastNewMessage", mock.Anything, mock.Anything)
}

func TestIngestImageMessageEnqueuesEnrichment(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	payload := whatsapp.Webhook{
		Entry: []whatsapp.Entry{{
			Changes: []whatsapp.Change{{
				Field: whatsapp.FieldMessages,
				Value: whatsapp.ChangeValue{
					Metadata: whatsapp.Metadata{PhoneNumberID: "15550001111"},
					Messages: []whatsapp.Message{{
						From:      "491700000002",
						ID:        "wamid.img",
						Timestamp: "1700000100",
						Type:      "image",
						Image: &whatsapp.Media{
							ID:       "media-9",
							MIMEType: "image/jpeg",
							SHA256:   "abc123",
							Caption:  "receipt",
						},
					}},
				},
			}},
		}},
	}

	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Type == models.TypeImage &&
			m.Content.Media != nil &&
			m.Content.Media.Status == models.MediaPending
	})).Return(true, nil).Once()
	chats.On("ApplyMessage", mock.Anything, "clinic_a", "491700000002", "491700000002",
		mock.Anything, "receipt", true, mock.Anything).
		Return(models.Chat{ChatID: "491700000002", UnreadCount: 1}, nil).Once()
	notifier.On("BroadcastNewMessage", "clinic_a", mock.Anything).Once()
	notifier.On("BroadcastChatUpdated", "clinic_a", mock.Anything).Once()
	enricher.On("Enqueue", mock.MatchedBy(func(job media.Job) bool {
		return job.MessageID == "wamid.img" &&
			job.TenantID == "clinic_a" &&
			job.ChatID == "491700000002" &&
			job.Media.ProviderID == "media-9" &&
			job.Folder == "clinic_a"
	})).Once()

	pipeline.Ingest(context.Background(), payload, testTenant)

	messages.AssertExpectations(t)
	chats.AssertExpectations(t)
	notifier.AssertExpectations(t)
	enricher.AssertExpectations(t)
}

func statusWebhook(messageID, status string) whatsapp.Webhook {
	return whatsapp.Webhook{
		Entry: []whatsapp.Entry{{
			Changes: []whatsapp.Change{{
				Field: whatsapp.FieldMessages,
				Value: whatsapp.ChangeValue{
					Statuses: []whatsapp.Status{{ID: messageID, Status: status}},
				},
			}},
		}},
	}
}

func TestIngestStatusUpdate(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	messages.On("AdvanceStatus", mock.Anything, "clinic_a", "wamid.out", models.StatusDelivered).
		Return(models.Message{MessageID: "wamid.out", ChatID: "491700000003"}, nil).Once()
	notifier.On("BroadcastStatusUpdate", "clinic_a", models.StatusUpdate{
		MessageID: "wamid.out",
		ChatID:    "491700000003",
		Status:    models.StatusDelivered,
	}).Once()

	pipeline.Ingest(context.Background(), statusWebhook("wamid.out", "delivered"), testTenant)

	messages.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestIngestStatusForUnknownMessageIsNoOp(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	enricher := new(enqueuerMock)
	pipeline := newTestPipeline(messages, chats, notifier, enricher)

	messages.On("AdvanceStatus", mock.Anything, "clinic_a", "wamid.missing", models.StatusRead).
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	pipeline.Ingest(context.Background(), statusWebhook("wamid.missing", "read"), testTenant)

	messages.AssertExpectations(t)
	notifier.AssertNotCalled(t, "BroadcastStatusUpdate", mock.Anything, mock.Anything)
}

func TestIngestUnrecognizedStatusValueIsSkipped(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	pipeline := newTestPipeline(messages, new(mocks.ChatRepositoryMock), new(mocks.NotifierMock), new(enqueuerMock))

	pipeline.Ingest(context.Background(), statusWebhook("wamid.x", "teleported"), testTenant)

	messages.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestStatusUpdateIsTenantScoped(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.NotifierMock)
	pipeline := newTestPipeline(messages, new(mocks.ChatRepositoryMock), notifier, new(enqueuerMock))

	// The status advance must carry the resolved tenant id, never an
	// unscoped external id lookup.
	messages.On("AdvanceStatus", mock.Anything, testTenant.ID, "wamid.scoped", models.StatusDelivered).
		Return(models.Message{MessageID: "wamid.scoped", ChatID: "491700000009"}, nil).Once()
	notifier.On("BroadcastStatusUpdate", testTenant.ID, mock.Anything).Once()

	pipeline.Ingest(context.Background(), statusWebhook("wamid.scoped", "delivered"), testTenant)

	messages.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestIngestIgnoresNonMessageFields(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	pipeline := newTestPipeline(messages, new(mocks.ChatRepositoryMock), new(mocks.NotifierMock), new(enqueuerMock))

	payload := whatsapp.Webhook{
		Entry: []whatsapp.Entry{{
			Changes: []whatsapp.Change{
				{Field: whatsapp.FieldTemplateStatusUpdate},
				{Field: "something_new"},
			},
		}},
	}
	pipeline.Ingest(context.Background(), payload, testTenant)

	messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestMapContentUnknownTypeKeepsRaw(t *testing.T) {
	content := mapContent(whatsapp.Message{ID: "wamid.u", Type: "order"})
	require.Equal(t, models.TypeUnknown, content.Type)
	assert.NotEmpty(t, content.Raw)
}

func TestParseTimestampFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	got := parseTimestamp("not-a-number")
	assert.True(t, got.After(before))

	exact := parseTimestamp("1700000000")
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), exact)
}
