package handler

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/realtime"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

const realtimeWriteTimeout = 5 * time.Second

// RealtimeHandler upgrades authenticated clients to a websocket and streams
// the events of the rooms their role grants.
type RealtimeHandler struct {
	auth    *middleware.Authenticator
	hub     *realtime.Hub
	origins []string
	logger  *zap.Logger
}

// NewRealtimeHandler constructs a RealtimeHandler. origins restricts the
// accepted Origin headers; empty accepts same-origin only.
func NewRealtimeHandler(auth *middleware.Authenticator, hub *realtime.Hub, origins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{auth: auth, hub: hub, origins: origins, logger: logger}
}

// Stream godoc
// @Summary Realtime event stream
// @Description Websocket upgrade. Pass the access token as ?token= or a Bearer header.
// @Tags Realtime
// @Param token query string false "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c)
	}
	user, err := h.auth.Authenticate(c.Request.Context(), token, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	client := h.hub.Subscribe(user.ID, user.Role, 64)
	defer h.hub.Unsubscribe(client)

	_ = wsjson.Write(ctx, conn, gin.H{"event": "ready", "rooms": client.Rooms})

	// the client never sends anything meaningful; reading surfaces disconnects
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-client.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, realtimeWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				h.logger.Debug("websocket write failed", zap.String("user_id", user.ID), zap.Error(err))
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
