package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"wa-gateway/internal/media"
	"wa-gateway/internal/models"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/repositories"
	"wa-gateway/internal/whatsapp"
)

// Notifier receives realtime notifications emitted by the pipeline.
type Notifier interface {
	BroadcastNewMessage(tenantID string, msg models.Message)
	BroadcastStatusUpdate(tenantID string, update models.StatusUpdate)
	BroadcastChatUpdated(tenantID string, update models.ChatUpdate)
}

// Enqueuer forks media enrichment off the ingestion path.
type Enqueuer interface {
	Enqueue(job media.Job)
}

// Pipeline normalizes inbound webhook payloads into the canonical model.
type Pipeline struct {
	messages repositories.MessageRepository
	chats    repositories.ChatRepository
	notifier Notifier
	enricher Enqueuer
	log      zerolog.Logger
}

// NewPipeline constructs the ingestion pipeline.
func NewPipeline(messages repositories.MessageRepository, chats repositories.ChatRepository, notifier Notifier, enricher Enqueuer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		messages: messages,
		chats:    chats,
		notifier: notifier,
		enricher: enricher,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes one webhook payload for a resolved tenant. It never
// returns an error: the platform retries aggressively on non-2xx responses,
// so every internal failure is logged and swallowed while sibling items keep
// processing.
func (p *Pipeline) Ingest(ctx context.Context, payload whatsapp.Webhook, tenant models.TenantIdentity) {
	observability.IncWebhookPayload(tenant.ID)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			switch change.Field {
			case whatsapp.FieldMessages:
				p.processMessages(ctx, change.Value, tenant)
			case whatsapp.FieldTemplateStatusUpdate, whatsapp.FieldAccountUpdate:
				// acknowledged but not modeled
			default:
				p.log.Debug().Str("field", change.Field).Msg("unhandled change field")
			}
		}
	}
}

func (p *Pipeline) processMessages(ctx context.Context, value whatsapp.ChangeValue, tenant models.TenantIdentity) {
	contactNames := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		contactNames[c.WaID] = c.Profile.Name
	}

	for _, msg := range value.Messages {
		p.saveMessage(ctx, msg, value.Metadata, contactNames[msg.From], tenant)
	}
	for _, status := range value.Statuses {
		p.applyStatus(ctx, status, tenant)
	}
}

// saveMessage persists one inbound message and its chat, notifies
// subscribers, and forks media enrichment. Errors are isolated per message.
func (p *Pipeline) saveMessage(ctx context.Context, msg whatsapp.Message, meta whatsapp.Metadata, contactName string, tenant models.TenantIdentity) {
	log := p.log.With().Str("message_id", msg.ID).Str("tenant", tenant.ID).Logger()

	// Identity of the conversation for incoming traffic is the sender.
	chatID := msg.From
	content := mapContent(msg)

	record := models.Message{
		MessageID:  msg.ID,
		ChatID:     chatID,
		TenantID:   tenant.ID,
		Timestamp:  parseTimestamp(msg.Timestamp),
		From:       msg.From,
		To:         meta.PhoneNumberID,
		Direction:  models.DirectionIncoming,
		Type:       content.Type,
		Content:    content,
		Status:     models.StatusReceived,
		RawPayload: msg.RawMessage(),
	}

	created, err := p.messages.Insert(ctx, record)
	if err != nil {
		log.Error().Err(err).Msg("message persist failed")
		observability.IncMessageIngested(tenant.ID, string(content.Type), "error")
		return
	}
	if !created {
		// Redelivery of an already applied id: nothing else to do.
		log.Debug().Msg("duplicate message id, already applied")
		observability.IncMessageIngested(tenant.ID, string(content.Type), "duplicate")
		return
	}
	observability.IncMessageIngested(tenant.ID, string(content.Type), "created")

	chatMeta := models.Metadata{"wa_id": msg.From}
	if contactName != "" {
		chatMeta["contact_name"] = contactName
	}
	chat, err := p.chats.ApplyMessage(ctx, tenant.ID, chatID, msg.From, record.Timestamp, content.Preview(), true, chatMeta)
	if err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("chat upsert failed")
	}

	p.notifier.BroadcastNewMessage(tenant.ID, record)
	if err == nil {
		p.notifier.BroadcastChatUpdated(tenant.ID, models.ChatUpdate{
			ChatID:             chat.ChatID,
			LastMessage:        chat.LastMessage,
			LastMessageContent: chat.LastMessageContent,
			UnreadCount:        chat.UnreadCount,
		})
	}

	if content.Type.HasMedia() && content.Media != nil {
		p.enricher.Enqueue(media.Job{
			MessageID: msg.ID,
			TenantID:  tenant.ID,
			ChatID:    chatID,
			Media:     *content.Media,
			Folder:    tenant.ID,
		})
	}
}

// applyStatus advances a message's delivery status. A status for an unknown
// id is a benign ordering artifact, not an error.
func (p *Pipeline) applyStatus(ctx context.Context, status whatsapp.Status, tenant models.TenantIdentity) {
	next, ok := mapStatus(status.Status)
	if !ok {
		p.log.Debug().Str("status", status.Status).Msg("unrecognized status value")
		observability.IncStatusUpdate("unrecognized")
		return
	}

	msg, err := p.messages.AdvanceStatus(ctx, tenant.ID, status.ID, next)
	if err != nil {
		if err == repositories.ErrMessageNotFound {
			p.log.Debug().Str("message_id", status.ID).Msg("status for unknown message id")
			observability.IncStatusUpdate("unknown_message")
			return
		}
		p.log.Error().Err(err).Str("message_id", status.ID).Msg("status update failed")
		observability.IncStatusUpdate("error")
		return
	}

	observability.IncStatusUpdate("applied")
	p.notifier.BroadcastStatusUpdate(tenant.ID, models.StatusUpdate{
		MessageID: msg.MessageID,
		ChatID:    msg.ChatID,
		Status:    next,
	})
}

// mapContent converts the provider-specific union into the canonical one.
// Media variants are stamped pending for the enricher.
func mapContent(msg whatsapp.Message) models.MessageContent {
	switch msg.Type {
	case "text":
		content := models.MessageContent{Type: models.TypeText}
		if msg.Text != nil {
			content.Text = &models.TextContent{Body: msg.Text.Body}
		}
		return content
	case "image", "audio", "document", "video", "sticker":
		content := models.MessageContent{Type: models.MessageType(msg.Type)}
		if ref := msg.MediaRef(); ref != nil {
			content.Media = &models.MediaAttachment{
				ProviderID: ref.ID,
				MIMEType:   ref.MIMEType,
				SHA256:     ref.SHA256,
				Caption:    ref.Caption,
				Status:     models.MediaPending,
			}
		}
		return content
	case "location":
		content := models.MessageContent{Type: models.TypeLocation}
		if msg.Location != nil {
			content.Location = &models.LocationContent{
				Latitude:  msg.Location.Latitude,
				Longitude: msg.Location.Longitude,
				Name:      msg.Location.Name,
				Address:   msg.Location.Address,
			}
		}
		return content
	case "contacts":
		content := models.MessageContent{Type: models.TypeContacts}
		for _, c := range msg.Contacts {
			card := models.ContactCard{FormattedName: c.Name.FormattedName}
			for _, phone := range c.Phones {
				card.Phones = append(card.Phones, phone.Phone)
			}
			if c.Org != nil {
				card.Organization = c.Org.Company
			}
			content.Contacts = append(content.Contacts, card)
		}
		return content
	case "interactive":
		content := models.MessageContent{Type: models.TypeInteractive}
		if msg.Interactive != nil {
			ic := &models.InteractiveContent{Type: msg.Interactive.Type}
			if msg.Interactive.ListReply != nil {
				ic.ReplyID = msg.Interactive.ListReply.ID
				ic.Title = msg.Interactive.ListReply.Title
				ic.Description = msg.Interactive.ListReply.Description
			} else if msg.Interactive.ButtonReply != nil {
				ic.ReplyID = msg.Interactive.ButtonReply.ID
				ic.Title = msg.Interactive.ButtonReply.Title
			}
			content.Interactive = ic
		}
		return content
	case "button":
		content := models.MessageContent{Type: models.TypeButton}
		if msg.Button != nil {
			content.Button = &models.ButtonContent{Text: msg.Button.Text, Payload: msg.Button.Payload}
		}
		return content
	case "reaction":
		content := models.MessageContent{Type: models.TypeReaction}
		if msg.Reaction != nil {
			content.Reaction = &models.ReactionContent{MessageID: msg.Reaction.MessageID, Emoji: msg.Reaction.Emoji}
		}
		return content
	case "unsupported":
		return models.MessageContent{Type: models.TypeUnsupported, Raw: msg.RawMessage()}
	default:
		return models.MessageContent{Type: models.TypeUnknown, Raw: msg.RawMessage()}
	}
}

func mapStatus(value string) (models.Status, bool) {
	switch value {
	case "sent":
		return models.StatusSent, true
	case "delivered":
		return models.StatusDelivered, true
	case "read":
		return models.StatusRead, true
	case "failed":
		return models.StatusFailed, true
	}
	return "", false
}

// parseTimestamp converts the platform's unix-seconds string.
func parseTimestamp(value string) time.Time {
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
