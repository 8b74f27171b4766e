package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"wa-gateway/internal/models"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/tenant"
)

// Client commands accepted on the socket.
const (
	ActionAuthenticate    = "authenticate"
	ActionSubscribeChat   = "subscribe_chat"
	ActionUnsubscribeChat = "unsubscribe_chat"
	ActionMarkChatRead    = "mark_chat_read"
	ActionGetChatList     = "get_chat_list"
	ActionGetChatMessages = "get_chat_messages"
	ActionPing            = "ping"
)

// ClientMessage is the client-initiated command envelope.
type ClientMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type authPayload struct {
	Token     string `json:"token"`
	ClientTag string `json:"client_tag,omitempty"`
}

type chatPayload struct {
	ChatID string `json:"chat_id"`
}

type chatListPayload struct {
	Limit      int  `json:"limit"`
	UnreadOnly bool `json:"unread_only"`
}

type chatMessagesPayload struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Handler upgrades dashboard connections and drives their command loop.
type Handler struct {
	hub       *Hub
	directory *tenant.Directory
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(hub *Hub, directory *tenant.Directory, log zerolog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		directory: directory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers from any tenant dashboard connect here; the tenant is
			// resolved from the handshake and authorization happens on the
			// socket, not at upgrade time.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

// Serve handles GET /ws. The tenant identity is pinned at handshake time and
// never changes for the life of the session.
func (h *Handler) Serve(c *gin.Context) {
	identity := h.directory.Resolve(tenant.RequestMeta{
		Host:      observability.HostFromRequest(c.Request),
		Origin:    c.Request.Header.Get("Origin"),
		UserAgent: c.Request.UserAgent(),
		ClientIP:  observability.IPFromRequest(c.Request),
	})

	_, span := otel.Tracer("ws").Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(
		attribute.String("tenant.id", identity.ID),
		attribute.Bool("tenant.known", identity.Known),
	)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	span.End()

	session := h.hub.Register(conn, identity)
	defer h.hub.Remove(session)

	h.readLoop(c, conn, session)
}

func (h *Handler) readLoop(c *gin.Context, conn *websocket.Conn, session *Session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("session", session.ID.String()).Msg("connection dropped")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.hub.sendError(session, models.CodeBadRequest, "", "")
			continue
		}

		session.Touch()
		h.dispatch(c, session, msg)
	}
}

func (h *Handler) dispatch(c *gin.Context, session *Session, msg ClientMessage) {
	switch msg.Action {
	case ActionAuthenticate:
		var payload authPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.Authenticate(session, payload.Token, payload.ClientTag)

	case ActionSubscribeChat:
		var payload chatPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.Subscribe(session, payload.ChatID)

	case ActionUnsubscribeChat:
		var payload chatPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.Unsubscribe(session, payload.ChatID)

	case ActionMarkChatRead:
		var payload chatPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.MarkRead(c.Request.Context(), session, payload.ChatID)

	case ActionGetChatList:
		var payload chatListPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.ChatList(c.Request.Context(), session, payload.Limit, payload.UnreadOnly)

	case ActionGetChatMessages:
		var payload chatMessagesPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.hub.ChatMessages(c.Request.Context(), session, payload.ChatID, payload.Limit, payload.Offset)

	case ActionPing:
		observability.IncWSEvent(models.EventPong)
		_ = session.Send(models.WSEvent{Type: models.EventPong, Timestamp: time.Now()})

	default:
		h.hub.sendError(session, models.CodeBadRequest, msg.Action, "")
	}
}
