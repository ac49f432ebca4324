package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/realtime"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// socketFrame is every frame the server writes to a chat websocket.
type socketFrame struct {
	Type           string          `json:"type"` // connected, message, error
	ConversationID uint            `json:"conversation_id,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	HighWater      uint            `json:"high_water,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// SocketHandler streams a conversation's new messages over a websocket.
type SocketHandler struct {
	conversations *services.ConversationService
	upgrader      websocket.Upgrader
}

// NewSocketHandler creates a new SocketHandler
func NewSocketHandler(conversations *services.ConversationService) *SocketHandler {
	return &SocketHandler{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// requests are authenticated by token, not by cookie
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterSocketRoutes registers the websocket route
func (h *SocketHandler) RegisterSocketRoutes(g *echo.Group) {
	g.GET("/conversations/:id/ws", h.Stream)
}

// Stream upgrades the request and forwards live messages. With ?after=<id>
// the messages after that id are sent first and live duplicates are skipped.
func (h *SocketHandler) Stream(c echo.Context) error {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return httpError(c, err)
	}
	userID := getUserIDFromContext(c)
	ctx := c.Request().Context()

	if !isAdmin(c) {
		if _, err := h.conversations.ResolveParticipant(ctx, convID, userID); err != nil {
			return httpError(c, err)
		}
	}
	_, resume := c.QueryParams()["after"]
	afterID, err := parseOptionalUint(c, "after")
	if err != nil {
		return httpError(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the response.
		return nil
	}

	conn := realtime.NewConnection(userID, ws)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "stream ended")
	go conn.ReadLoop()

	// the request context ends with the handler; the stream lives as long as the socket
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	go func() {
		<-conn.Done()
		cancel()
	}()

	// subscribe before reading the backlog so nothing falls between them
	sub := h.conversations.Subscribe(streamCtx, convID)
	defer sub.Close()

	var seen map[uint]struct{}
	highWater := afterID
	if resume {
		page, err := h.conversations.ListMessages(streamCtx, convID, afterID)
		if err != nil {
			_ = conn.SendJSON(socketFrame{Type: "error", Code: "backlog_unavailable", Error: err.Error()})
			conn.Close(websocket.CloseInternalServerErr, "backlog unavailable")
			return nil
		}
		seen = make(map[uint]struct{}, len(page.Messages))
		for i := range page.Messages {
			m := &page.Messages[i]
			seen[m.ID] = struct{}{}
			if conn.SendJSON(socketFrame{Type: "message", ConversationID: convID, Message: m}) != nil {
				return nil
			}
		}
		highWater = page.HighWater
	}
	if conn.SendJSON(socketFrame{Type: "connected", ConversationID: convID, HighWater: highWater}) != nil {
		return nil
	}

	for {
		select {
		case <-conn.Done():
			return nil
		case m, ok := <-sub.Messages():
			if !ok {
				h.closeEnded(conn, sub)
				return nil
			}
			if _, dup := seen[m.ID]; dup {
				delete(seen, m.ID)
				continue
			}
			if err := conn.SendJSON(socketFrame{Type: "message", ConversationID: convID, Message: m}); err != nil {
				return nil
			}
		}
	}
}

func (h *SocketHandler) closeEnded(conn *realtime.Connection, sub *realtime.Subscription) {
	if errors.Is(sub.Err(), models.ErrSubscriberTooSlow) {
		log.Warn().Uint("conversation_id", sub.ConversationID).Str("connection_id", conn.ID).Msg("websocket subscriber fell behind")
		_ = conn.SendJSON(socketFrame{Type: "error", Code: "too_slow", Error: sub.Err().Error()})
		conn.Close(websocket.CloseTryAgainLater, "fell behind, reload history")
		return
	}
	conn.Close(websocket.CloseGoingAway, "stream closed")
}
