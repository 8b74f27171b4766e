package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wa-gateway/internal/auth"
	"wa-gateway/internal/config"
	"wa-gateway/internal/models"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/repositories"
)

// authAck is the payload of the authenticated event.
type authAck struct {
	Principal auth.Principal `json:"principal"`
	Tenant    tenantSummary  `json:"tenant"`
}

type tenantSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// roomKey scopes a conversation room to its tenant. Cross-tenant delivery is
// impossible by construction: a session only ever joins rooms keyed with its
// own tenant id.
type roomKey struct {
	tenantID string
	chatID   string
}

// Hub tracks realtime sessions and fans events out to tenant and
// conversation audiences. Broadcast is send-and-forget: a failed write
// closes that session and delivery continues to the rest.
type Hub struct {
	verifier auth.Verifier
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	cfg      config.HubConfig
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	rooms    map[roomKey]map[uuid.UUID]*Session

	stop chan struct{}
}

// NewHub constructs the hub. Call Run to start the idle sweeper.
func NewHub(verifier auth.Verifier, chats repositories.ChatRepository, messages repositories.MessageRepository, cfg config.HubConfig, log zerolog.Logger) *Hub {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 30 * time.Minute
	}
	return &Hub{
		verifier: verifier,
		chats:    chats,
		messages: messages,
		cfg:      cfg,
		log:      log.With().Str("component", "ws_hub").Logger(),
		sessions: make(map[uuid.UUID]*Session),
		rooms:    make(map[roomKey]map[uuid.UUID]*Session),
		stop:     make(chan struct{}),
	}
}

// Register admits a new connection as an unauthenticated session and arms
// the authentication deadline.
func (h *Hub) Register(conn Conn, tenant models.TenantIdentity) *Session {
	s := newSession(conn, tenant)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	observability.IncWSActive()

	s.setAuthTimer(time.AfterFunc(h.cfg.AuthTimeout, func() {
		h.expireUnauthenticated(s)
	}))

	h.log.Info().
		Str("session", s.ID.String()).
		Str("tenant", tenant.ID).
		Bool("known", tenant.Known).
		Msg("session registered")
	return s
}

// Remove drops the session from the hub and all rooms and closes it.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	_, present := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	for _, chatID := range s.subscriptionList() {
		h.leaveRoomLocked(roomKey{tenantID: s.Tenant.ID, chatID: chatID}, s.ID)
	}
	h.mu.Unlock()

	s.close()
	if present {
		observability.DecWSActive()
		h.log.Info().Str("session", s.ID.String()).Msg("session removed")
	}
}

// expireUnauthenticated fires when the auth deadline passes without a
// completed token exchange. The claim and the authenticated check happen
// atomically on the session, so a token exchange racing the timer either
// wins cleanly or is rejected, never evicted after succeeding.
func (h *Hub) expireUnauthenticated(s *Session) {
	if !s.expireIfUnauthenticated() {
		return
	}
	observability.IncWSEvent(models.EventAuthTimeout)
	_ = s.Send(models.WSEvent{
		Type:      models.EventAuthTimeout,
		Data:      models.ErrorEvent{Code: models.CodeAuthTimeout},
		Timestamp: time.Now(),
	})
	h.log.Info().Str("session", s.ID.String()).Msg("authentication deadline expired")
	h.Remove(s)
}

// Authenticate verifies the presented token. Failure reports a stable code
// and leaves the session unauthenticated with the deadline still armed, so
// the client may retry until it fires.
func (h *Hub) Authenticate(s *Session, token, clientTag string) {
	principal, err := h.verifier.Verify(token)
	if err != nil {
		code := models.CodeTokenInvalid
		switch {
		case errors.Is(err, auth.ErrTokenMissing):
			code = models.CodeTokenMissing
		case errors.Is(err, auth.ErrTokenExpired):
			code = models.CodeTokenExpired
		}
		observability.IncWSEvent(models.EventAuthFailed)
		_ = s.Send(models.WSEvent{
			Type:      models.EventAuthFailed,
			Data:      models.ErrorEvent{Code: code},
			Timestamp: time.Now(),
		})
		h.log.Info().Str("session", s.ID.String()).Str("code", code).Msg("authentication failed")
		return
	}

	if !s.markAuthenticated(principal, clientTag) {
		// The deadline claimed the session first; it is being torn down.
		h.log.Info().Str("session", s.ID.String()).Msg("authentication arrived after deadline")
		return
	}
	observability.IncWSEvent(models.EventAuthenticated)
	_ = s.Send(models.WSEvent{
		Type: models.EventAuthenticated,
		Data: authAck{
			Principal: principal,
			Tenant:    tenantSummary{ID: s.Tenant.ID, Name: s.Tenant.Name},
		},
		Timestamp: time.Now(),
	})
	h.log.Info().
		Str("session", s.ID.String()).
		Str("subject", principal.Subject).
		Str("tenant", s.Tenant.ID).
		Str("client_tag", clientTag).
		Msg("session authenticated")
}

// requireAuthorized gates chat-scoped commands. The tenant must be resolved
// and active, and the token exchange must be complete.
func (h *Hub) requireAuthorized(s *Session, action, chatID string) bool {
	if !s.Authenticated() {
		h.sendError(s, models.CodeAuthRequired, action, chatID)
		return false
	}
	if !s.Tenant.Known {
		h.sendError(s, models.CodeTenantUnknown, action, chatID)
		return false
	}
	if !s.Tenant.Active {
		h.sendError(s, models.CodeTenantForbidden, action, chatID)
		return false
	}
	return true
}

// Subscribe joins the session to a conversation room within its own tenant.
func (h *Hub) Subscribe(s *Session, chatID string) {
	if !h.requireAuthorized(s, "subscribe_chat", chatID) {
		return
	}
	if chatID == "" {
		h.sendError(s, models.CodeBadRequest, "subscribe_chat", chatID)
		return
	}

	key := roomKey{tenantID: s.Tenant.ID, chatID: chatID}
	h.mu.Lock()
	room, ok := h.rooms[key]
	if !ok {
		room = make(map[uuid.UUID]*Session)
		h.rooms[key] = room
	}
	room[s.ID] = s
	h.mu.Unlock()
	s.addSubscription(chatID)

	observability.IncWSEvent(models.EventChatSubscribed)
	_ = s.Send(models.WSEvent{
		Type:      models.EventChatSubscribed,
		ChatID:    chatID,
		Timestamp: time.Now(),
	})
}

// Unsubscribe leaves a conversation room.
func (h *Hub) Unsubscribe(s *Session, chatID string) {
	if !h.requireAuthorized(s, "unsubscribe_chat", chatID) {
		return
	}

	h.mu.Lock()
	h.leaveRoomLocked(roomKey{tenantID: s.Tenant.ID, chatID: chatID}, s.ID)
	h.mu.Unlock()
	s.removeSubscription(chatID)

	observability.IncWSEvent(models.EventChatUnsubscribed)
	_ = s.Send(models.WSEvent{
		Type:      models.EventChatUnsubscribed,
		ChatID:    chatID,
		Timestamp: time.Now(),
	})
}

func (h *Hub) leaveRoomLocked(key roomKey, sessionID uuid.UUID) {
	room, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, key)
	}
}

// MarkRead clears the chat's unread counter and flips persisted incoming
// statuses, then notifies the conversation room, the requester included.
func (h *Hub) MarkRead(ctx context.Context, s *Session, chatID string) {
	if !h.requireAuthorized(s, "mark_chat_read", chatID) {
		return
	}

	if err := h.chats.MarkRead(ctx, s.Tenant.ID, chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			h.sendError(s, models.CodeBadRequest, "mark_chat_read", chatID)
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("mark read failed")
		h.sendError(s, models.CodeInternal, "mark_chat_read", chatID)
		return
	}
	if err := h.messages.MarkChatRead(ctx, s.Tenant.ID, chatID); err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("message status sweep failed")
	}

	observability.IncWSEvent(models.EventChatMarkedRead)
	h.sendToRoom(s.Tenant.ID, chatID, models.WSEvent{
		Type:      models.EventChatMarkedRead,
		ChatID:    chatID,
		Timestamp: time.Now(),
	})
	h.BroadcastChatUpdated(s.Tenant.ID, models.ChatUpdate{ChatID: chatID, UnreadCount: 0})
}

// ChatList replies with the tenant's conversations ordered by recency.
func (h *Hub) ChatList(ctx context.Context, s *Session, limit int, unreadOnly bool) {
	if !h.requireAuthorized(s, "get_chat_list", "") {
		return
	}

	chats, err := h.chats.List(ctx, s.Tenant.ID, limit, unreadOnly)
	if err != nil {
		h.log.Error().Err(err).Msg("chat list failed")
		h.sendError(s, models.CodeInternal, "get_chat_list", "")
		return
	}

	observability.IncWSEvent(models.EventChatList)
	_ = s.Send(models.WSEvent{
		Type:      models.EventChatList,
		Data:      chats,
		Timestamp: time.Now(),
	})
}

// ChatMessages replies with a page of the conversation's history.
func (h *Hub) ChatMessages(ctx context.Context, s *Session, chatID string, limit, offset int) {
	if !h.requireAuthorized(s, "get_chat_messages", chatID) {
		return
	}
	if chatID == "" {
		h.sendError(s, models.CodeBadRequest, "get_chat_messages", chatID)
		return
	}

	messages, err := h.messages.ListByChat(ctx, s.Tenant.ID, chatID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("chat messages failed")
		h.sendError(s, models.CodeInternal, "get_chat_messages", chatID)
		return
	}

	observability.IncWSEvent(models.EventChatMessages)
	_ = s.Send(models.WSEvent{
		Type:      models.EventChatMessages,
		ChatID:    chatID,
		Data:      messages,
		Timestamp: time.Now(),
	})
}

// BroadcastNewMessage pushes a persisted message to its conversation room.
func (h *Hub) BroadcastNewMessage(tenantID string, msg models.Message) {
	observability.IncWSEvent(models.EventNewMessage)
	h.sendToRoom(tenantID, msg.ChatID, models.WSEvent{
		Type:      models.EventNewMessage,
		ChatID:    msg.ChatID,
		Data:      msg,
		Timestamp: time.Now(),
	})
}

// BroadcastStatusUpdate pushes a delivery status change to its conversation
// room.
func (h *Hub) BroadcastStatusUpdate(tenantID string, update models.StatusUpdate) {
	observability.IncWSEvent(models.EventMessageStatus)
	h.sendToRoom(tenantID, update.ChatID, models.WSEvent{
		Type:      models.EventMessageStatus,
		ChatID:    update.ChatID,
		Data:      update,
		Timestamp: time.Now(),
	})
}

// BroadcastChatUpdated pushes a chat summary change to every authenticated
// session of the tenant.
func (h *Hub) BroadcastChatUpdated(tenantID string, update models.ChatUpdate) {
	observability.IncWSEvent(models.EventChatUpdated)
	h.sendToTenant(tenantID, models.WSEvent{
		Type:      models.EventChatUpdated,
		ChatID:    update.ChatID,
		Data:      update,
		Timestamp: time.Now(),
	})
}

// BroadcastMediaProcessed pushes an enrichment result to its conversation
// room.
func (h *Hub) BroadcastMediaProcessed(tenantID string, result models.MediaResult) {
	observability.IncWSEvent(models.EventMediaProcessed)
	h.sendToRoom(tenantID, result.ChatID, models.WSEvent{
		Type:      models.EventMediaProcessed,
		ChatID:    result.ChatID,
		Data:      result,
		Timestamp: time.Now(),
	})
}

func (h *Hub) sendToRoom(tenantID, chatID string, event models.WSEvent) {
	key := roomKey{tenantID: tenantID, chatID: chatID}
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[key]))
	for _, s := range h.rooms[key] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

func (h *Hub) sendToTenant(tenantID string, event models.WSEvent) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.Tenant.ID == tenantID && s.Authenticated() {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, event)
}

// deliver writes outside the hub lock. A session whose write fails is torn
// down; the remaining recipients still get the event.
func (h *Hub) deliver(targets []*Session, event models.WSEvent) {
	for _, s := range targets {
		if err := s.Send(event); err != nil {
			h.log.Warn().Err(err).Str("session", s.ID.String()).Msg("write failed, dropping session")
			h.Remove(s)
		}
	}
}

func (h *Hub) sendError(s *Session, code, action, chatID string) {
	observability.IncWSEvent(models.EventError)
	_ = s.Send(models.WSEvent{
		Type:      models.EventError,
		ChatID:    chatID,
		Data:      models.ErrorEvent{Code: code, Action: action, ChatID: chatID},
		Timestamp: time.Now(),
	})
}

// Run sweeps idle sessions until Close is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweepIdle()
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) sweepIdle() {
	cutoff := time.Now().Add(-h.cfg.IdleThreshold)

	h.mu.RLock()
	stale := make([]*Session, 0)
	for _, s := range h.sessions {
		if s.IdleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.log.Info().Str("session", s.ID.String()).Msg("evicting idle session")
		h.Remove(s)
	}
}

// SessionCount reports the number of tracked sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close stops the sweeper and tears down every session.
func (h *Hub) Close() {
	close(h.stop)

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Remove(s)
	}
}
