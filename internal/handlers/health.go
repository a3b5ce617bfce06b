package handlers

import (
	"net/http"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the subsystems the API depends on.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.InboxHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.InboxHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var pending int64
	h.db.WithContext(c.Request.Context()).Model(&models.GroupApplication{}).
		Where("status = ?", models.ApplicationPending).
		Count(&pending)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "fuse",
		"components": gin.H{
			"database":             dbStatus,
			"queue_mode":           queueMode,
			"stream_clients":       h.hub.ClientCount(),
			"pending_applications": pending,
		},
	})
}
