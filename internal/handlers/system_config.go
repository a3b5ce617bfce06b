package handlers

import (
	"context"

	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// Rescheduler re-reads the scheduler settings after they change.
type Rescheduler interface {
	Reschedule(ctx context.Context) error
}

type SystemConfigHandler struct {
	configService *services.SystemConfigService
	scheduler     Rescheduler
}

// NewSystemConfigHandler accepts a nil scheduler, e.g. when only migrating.
func NewSystemConfigHandler(configs *services.SystemConfigService, scheduler Rescheduler) *SystemConfigHandler {
	return &SystemConfigHandler{configService: configs, scheduler: scheduler}
}

// GET /api/system-config/scheduler
func (h *SystemConfigHandler) GetSchedulerConfig(c *gin.Context) {
	configs, err := h.configService.GetByGroup(c.Request.Context(), "scheduler")
	if err != nil {
		fail(c, err)
		return
	}
	system, err := h.configService.GetByGroup(c.Request.Context(), "system")
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, append(configs, system...))
}

// PUT /api/system-config/scheduler
func (h *SystemConfigHandler) UpdateSchedulerConfig(c *gin.Context) {
	var req services.UpdateSchedulerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.configService.UpdateScheduler(ctx, &req); err != nil {
		fail(c, err)
		return
	}
	if h.scheduler != nil {
		if err := h.scheduler.Reschedule(context.WithoutCancel(ctx)); err != nil {
			fail(c, err)
			return
		}
	}
	h.GetSchedulerConfig(c)
}
