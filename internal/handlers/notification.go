package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const streamKeepAlive = 30 * time.Second

type NotificationHandler struct {
	inbox *services.InboxService
	hub   *services.InboxHub
}

func NewNotificationHandler(inbox *services.InboxService, hub *services.InboxHub) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, hub: hub}
}

// GET /api/notifications?unread=true
func (h *NotificationHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.inbox.List(c.Request.Context(), middleware.GetUserID(c), c.Query("unread") == "true", page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.inbox.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

// Stream pushes the caller's new notifications as server-sent events.
// GET /api/notifications/stream
func (h *NotificationHandler) Stream(c *gin.Context) {
	userID := middleware.GetUserID(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(userID, clientID)
	defer h.hub.Unsubscribe(userID, clientID)

	log := logger.Component("stream").With().Str("client_id", clientID).Uint("user_id", userID).Logger()
	log.Info().Int("total", h.hub.ClientCount()).Msg("notification stream connected")

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(n)
			if err != nil {
				log.Error().Err(err).Msg("notification marshal error")
				return true
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.ID, n.Type, data)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			log.Info().Msg("notification stream disconnected")
			return false
		}
	})
}
