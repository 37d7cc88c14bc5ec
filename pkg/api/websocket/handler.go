package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mardens/potracker/internal/application/broadcaster"
	"github.com/mardens/potracker/internal/auth"
	"github.com/mardens/potracker/pkg/domain"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	// DefaultPingInterval keeps idle connections through proxies
	DefaultPingInterval = 30 * time.Second
)

// TokenValidator validates stream tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Handler handles WebSocket connections
type Handler struct {
	hub          *broadcaster.Hub
	validator    TokenValidator
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHandler creates a new WebSocket handler. Requests without an Origin
// header are accepted; browser requests must come from allowedOrigins
// unless the list is empty.
func NewHandler(
	hub *broadcaster.Hub,
	validator TokenValidator,
	allowedOrigins []string,
	pingInterval time.Duration,
	logger *zap.Logger,
) *Handler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Handler{
		hub:       hub,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				if !ok {
					_, ok = origins["*"]
				}
				return ok
			},
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// HandleEvents streams change events over a WebSocket connection
func (h *Handler) HandleEvents(c *gin.Context) {
	if _, err := h.validator.Validate(c.Query("token")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
		})
		return
	}

	client, err := h.hub.Register("websocket")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "STREAM_UNAVAILABLE", "message": err.Error()},
		})
		return
	}
	defer h.hub.Unregister(client)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.Uint64("client_id", client.ID),
		zap.String("client", c.ClientIP()))

	// The read pump only notices the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case event, ok := <-client.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}

			data, err := json.Marshal(domain.Envelope{Type: event.Kind})
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
