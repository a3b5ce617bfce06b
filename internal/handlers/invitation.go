package handlers

import (
	"errors"
	"io"

	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type InvitationHandler struct {
	invitations *services.InvitationService
}

func NewInvitationHandler(m *services.Membership) *InvitationHandler {
	return &InvitationHandler{invitations: m.Invitations}
}

// POST /api/{kind}/:id/invitations
func (h *InvitationHandler) Invite(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	var req services.InviteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	inv, err := h.invitations.Invite(c.Request.Context(), middleware.GetUserID(c), ref, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, inv)
}

// List returns the caller's pending invitations.
// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	invs, err := h.invitations.ListInvitations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, invs)
}

type acceptRequest struct {
	InterviewID *uint `json:"interview_id"`
}

// Accept takes an invitation. Interview invitations name the chosen slot.
// POST /api/invitations/:id/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	// The body is optional; a chunked request may still turn out empty.
	var req acceptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, err.Error())
			return
		}
	}

	inv, err := h.invitations.AcceptInvite(c.Request.Context(), middleware.GetUserID(c), id, req.InterviewID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, inv)
}

// POST /api/invitations/:id/decline
func (h *InvitationHandler) Decline(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.invitations.DeclineInvite(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}
