package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/taskboard-api/internal/api/middleware"
	"github.com/phrazzld/taskboard-api/internal/api/shared"
	"github.com/phrazzld/taskboard-api/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	maxControlMessageSize = 512
)

// StreamHandler upgrades authenticated requests to WebSocket connections
// and forwards the user's task events from Redis pub/sub. Each connection
// gets its own subscription to the user's channel, so multiple tabs or
// devices all receive every event.
type StreamHandler struct {
	redis    *redis.Client
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler. allowedOrigins restricts
// which browser origins may open a connection; an empty list allows all.
func NewStreamHandler(redisClient *redis.Client, allowedOrigins []string, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}

	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = struct{}{}
	}

	return &StreamHandler{
		redis:  redisClient,
		logger: logger.With("component", "stream_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(originSet) == 0 {
					return true
				}
				_, ok := originSet[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve handles GET /ws. The auth middleware has already validated the
// token (from the Authorization header or the token query parameter) by
// the time this runs.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		h.logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	channel := events.ChannelFor(userID)
	sub := h.redis.Subscribe(r.Context(), channel)

	// Confirm the subscription before serving so no event published after
	// the upgrade is missed.
	if _, err := sub.Receive(r.Context()); err != nil {
		h.logger.Error("failed to subscribe to event channel",
			"user_id", userID,
			"channel", channel,
			"error", err)
		_ = sub.Close()
		_ = conn.Close()
		return
	}

	h.logger.Info("websocket connected", "user_id", userID, "channel", channel)

	ctx, cancel := context.WithCancel(context.Background())

	go h.readPump(cancel, conn, userID)
	go h.writePump(ctx, conn, sub, userID)
}

// readPump drains the connection. Clients never send application
// messages; reading is only needed to process close frames and pong
// control messages. Any read error tears the connection down.
func (h *StreamHandler) readPump(cancel context.CancelFunc, conn *websocket.Conn, userID uuid.UUID) {
	defer cancel()

	conn.SetReadLimit(maxControlMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "user_id", userID, "error", err)
			}
			return
		}
	}
}

// writePump forwards subscription messages to the connection and keeps it
// alive with periodic pings.
func (h *StreamHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *redis.PubSub, userID uuid.UUID) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.Close()
		_ = conn.Close()
		h.logger.Info("websocket disconnected", "user_id", userID)
	}()

	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-messages:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.logger.Debug("websocket write error", "user_id", userID, "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
