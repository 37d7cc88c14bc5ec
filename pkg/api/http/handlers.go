package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mardens/potracker/internal/application/notifier"
	"github.com/mardens/potracker/internal/auth"
	"github.com/mardens/potracker/pkg/domain"
	"go.uber.org/zap"
)

// NotifyRequest is the body of POST /api/events/notify
type NotifyRequest struct {
	Type   string `json:"type" binding:"required"`
	Source string `json:"source"`
}

// NotifyResponse acknowledges an accepted notification
type NotifyResponse struct {
	ID          string      `json:"id"`
	Type        domain.Kind `json:"type"`
	Revision    int64       `json:"revision"`
	PublishedAt time.Time   `json:"published_at"`
}

// StatusResponse reports the latest change per kind
type StatusResponse struct {
	Changes []*domain.Change `json:"changes"`
	Clients int              `json:"clients"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	overall := "healthy"
	hubCheck := "ok"
	if !s.hub.Running() {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
		hubCheck = "stopped"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"broadcaster": hubCheck,
			"clients":     s.hub.ClientCount(),
		},
	})
}

// handleNotify publishes a change notification
func (s *Server) handleNotify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid notify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	kind, err := domain.ParseKind(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_KIND",
				Message: err.Error(),
				Details: domain.Kinds(),
			},
		})
		return
	}

	source := req.Source
	if source == "" {
		if claims, ok := c.Get(claimsKey); ok {
			source = "user:" + claims.(*auth.Claims).Subject
		}
	}

	change, err := s.notifier.Notify(c.Request.Context(), &notifier.Notification{
		Kind:   kind,
		Source: source,
	})
	if err != nil {
		status, code := http.StatusInternalServerError, "NOTIFY_FAILED"
		switch {
		case errors.Is(err, notifier.ErrShutdown):
			status, code = http.StatusServiceUnavailable, "SHUTTING_DOWN"
		case errors.Is(err, domain.ErrInvalidKind):
			status, code = http.StatusBadRequest, "INVALID_KIND"
		default:
			s.logger.Error("failed to notify", zap.Error(err))
		}
		if status == http.StatusInternalServerError {
			err = errors.New("notification could not be published")
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, NotifyResponse{
		ID:          change.ID,
		Type:        change.Kind,
		Revision:    change.Revision,
		PublishedAt: change.Timestamp,
	})
}

// handleStatus returns the latest change per kind
func (s *Server) handleStatus(c *gin.Context) {
	changes, err := s.notifier.Status(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to load status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STATUS_FAILED",
				Message: "status unavailable",
			},
		})
		return
	}

	if changes == nil {
		changes = []*domain.Change{}
	}

	c.JSON(http.StatusOK, StatusResponse{
		Changes: changes,
		Clients: s.hub.ClientCount(),
	})
}
