package handlers

import (
	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type InterviewHandler struct {
	interviews *services.InterviewService
	holidays   *services.HolidayService
}

func NewInterviewHandler(m *services.Membership, holidays *services.HolidayService) *InterviewHandler {
	return &InterviewHandler{interviews: m.Interviews, holidays: holidays}
}

// GET /api/{kind}/:id/interviews/available
func (h *InterviewHandler) Available(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	slots, err := h.interviews.AvailableSlots(c.Request.Context(), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, slots)
}

// GET /api/{kind}/:id/interviews
func (h *InterviewHandler) List(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	slots, err := h.interviews.ListSlots(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, slots)
}

type addSlotsRequest struct {
	Slots []services.SlotInput `json:"slots" binding:"required,dive"`
}

// POST /api/{kind}/:id/interviews
func (h *InterviewHandler) Add(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	var req addSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	slots, err := h.interviews.AddSlots(c.Request.Context(), middleware.GetUserID(c), ref, req.Slots)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, slots)
}

// Generate creates the slots described by the group's templates.
// POST /api/{kind}/:id/interviews/generate
func (h *InterviewHandler) Generate(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	slots, err := h.interviews.GenerateSlots(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, slots)
}

// GET /api/{kind}/:id/interview-templates
func (h *InterviewHandler) ListTemplates(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	templates, err := h.interviews.ListTemplates(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, templates)
}

// POST /api/{kind}/:id/interview-templates
func (h *InterviewHandler) AddTemplate(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	var req services.SlotInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tmpl, err := h.interviews.AddTemplate(c.Request.Context(), middleware.GetUserID(c), ref, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, tmpl)
}

// PUT /api/interviews/:id
func (h *InterviewHandler) Edit(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.EditSlotInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	slot, err := h.interviews.EditSlot(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, slot)
}

// POST /api/interviews/:id/cancel
func (h *InterviewHandler) Cancel(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.interviews.CancelSlot(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// DELETE /api/interviews/:id
func (h *InterviewHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.interviews.DeleteSlot(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Countries lists the holiday calendars a group can pick.
// GET /api/holiday-countries
func (h *InterviewHandler) Countries(c *gin.Context) {
	response.Success(c, h.holidays.Supported())
}
