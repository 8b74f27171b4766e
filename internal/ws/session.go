package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"wa-gateway/internal/auth"
	"wa-gateway/internal/models"
)

// Conn is the subset of the websocket connection the hub writes through.
// *websocket.Conn satisfies it; tests substitute a recorder.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one realtime connection. It starts unauthenticated, becomes
// authenticated after a successful token exchange, and is closed exactly once.
// The hub owns registration; the session owns its own write serialization.
type Session struct {
	ID     uuid.UUID
	Tenant models.TenantIdentity

	conn Conn

	mu            sync.Mutex
	authenticated bool
	principal     auth.Principal
	clientTag     string
	subscriptions map[string]struct{}
	lastActivity  time.Time
	authTimer     *time.Timer
	expired       bool
	closed        bool
}

func newSession(conn Conn, tenant models.TenantIdentity) *Session {
	return &Session{
		ID:            uuid.New(),
		Tenant:        tenant,
		conn:          conn,
		subscriptions: make(map[string]struct{}),
		lastActivity:  time.Now(),
	}
}

// Send writes one event to the session. Writes are serialized; concurrent
// broadcasts and command replies share the connection.
func (s *Session) Send(event models.WSEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.conn.WriteJSON(event)
}

// Touch refreshes the idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleSince reports the last activity time.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Authenticated reports whether the token exchange completed.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Principal returns the verified identity, zero until authenticated.
func (s *Session) Principal() auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// ClientTag returns the client-supplied device label recorded at
// authentication time.
func (s *Session) ClientTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientTag
}

// markAuthenticated completes the token exchange. It reports false when the
// deadline already claimed the session, so authentication and expiry cannot
// both win.
func (s *Session) markAuthenticated(p auth.Principal, clientTag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired || s.closed {
		return false
	}
	s.authenticated = true
	s.principal = p
	s.clientTag = clientTag
	s.lastActivity = time.Now()
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	return true
}

// expireIfUnauthenticated atomically claims the session for eviction. It
// fails once authentication has completed; checking and claiming under the
// same lock keeps the deadline from evicting a session whose token exchange
// finished after the timer fired.
func (s *Session) expireIfUnauthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated || s.closed {
		return false
	}
	s.expired = true
	return true
}

func (s *Session) setAuthTimer(t *time.Timer) {
	s.mu.Lock()
	s.authTimer = t
	s.mu.Unlock()
}

func (s *Session) addSubscription(chatID string) {
	s.mu.Lock()
	s.subscriptions[chatID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeSubscription(chatID string) {
	s.mu.Lock()
	delete(s.subscriptions, chatID)
	s.mu.Unlock()
}

func (s *Session) subscriptionList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	chats := make([]string, 0, len(s.subscriptions))
	for id := range s.subscriptions {
		chats = append(chats, id)
	}
	return chats
}

// close transitions to closed and tears down the connection. Safe to call
// more than once.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	s.mu.Unlock()
	_ = s.conn.Close()
}
