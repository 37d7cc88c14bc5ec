package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mardens/potracker/internal/application/broadcaster"
	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"go.uber.org/zap"
)

const heartbeatFrame = ": heartbeat\n\n"

// handleEvents streams change frames to an authenticated client until it
// disconnects or the broadcaster shuts down
func (s *Server) handleEvents(c *gin.Context) {
	if _, err := s.validator.Validate(c.Query("token")); err != nil {
		s.logger.Debug("stream token rejected", zap.Error(err))
		abortUnauthorized(c, "invalid or expired token")
		return
	}

	client, err := s.hub.Register("sse")
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, broadcaster.ErrNotRunning) {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STREAM_UNAVAILABLE",
				Message: err.Error(),
			},
		})
		return
	}
	defer s.hub.Unregister(client)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-client.Events():
			if !ok {
				return
			}
			if err := writeChangeFrame(c.Writer, event); err != nil {
				s.logger.Debug("sse write failed",
					zap.Uint64("client_id", client.ID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, heartbeatFrame); err != nil {
				return
			}
		}
		c.Writer.Flush()
	}
}

// writeChangeFrame writes one "id:"/"data:" frame for event
func writeChangeFrame(w io.Writer, event ports.Event) error {
	data, err := json.Marshal(domain.Envelope{Type: event.Kind})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if event.Revision > 0 {
		_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Revision, data)
	} else {
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	}
	return err
}
