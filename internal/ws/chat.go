package ws

import (
	"net/http"
	"sync"
	"time"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/relay"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// ChatHandler serves the typed-event chat stream. Instead of the HTTP
// endpoint's marker-framed plain text, each turn is delivered as a sequence
// of JSON events: chunk* then done, or error.
type ChatHandler struct {
	chat *service.ChatService
	log  *logger.Logger
}

func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

// connWriter serializes concurrent writes to one websocket connection.
type connWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *connWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

// Serve upgrades the connection and runs chat turns until the peer
// disconnects. Each inbound frame is one TurnRequest.
func (h *ChatHandler) Serve(c *gin.Context) {
	userID, exists := c.Get("userID")
	uid, ok := userID.(uint)
	if !exists || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	writer := &connWriter{conn: conn}

	for {
		var req service.TurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read failed", "user_id", uid, "error", err.Error())
			}
			return
		}

		if req.CharacterID == 0 || req.ChatID == 0 || req.UserInput == "" {
			writer.WriteJSON(relay.StreamEvent{Type: relay.EventError, Error: "invalid request"})
			continue
		}

		h.runTurn(c, uid, &req, writer)
	}
}

func (h *ChatHandler) runTurn(c *gin.Context, userID uint, req *service.TurnRequest, writer *connWriter) {
	turn, err := h.chat.Prepare(c.Request.Context(), userID, req)
	if err != nil {
		writer.WriteJSON(relay.StreamEvent{Type: relay.EventError, Error: turnErrorMessage(err)})
		return
	}

	sink := relay.NewEventSink(writer)
	if _, err := h.chat.Stream(c.Request.Context(), turn, sink); err != nil {
		h.log.Warn("WebSocket chat stream ended early", "user_id", userID, "error", err.Error())
		writer.WriteJSON(relay.StreamEvent{Type: relay.EventError, Error: "stream interrupted"})
	}
}

func turnErrorMessage(err error) string {
	switch err {
	case service.ErrCharacterNotFound:
		return "character not found"
	case service.ErrConversationNotFound:
		return "conversation not found"
	case llm.ErrCredentialMissing:
		return "no API key configured for this provider"
	case llm.ErrUpstreamFailed:
		return "upstream provider call failed"
	default:
		return "failed to start chat turn"
	}
}
