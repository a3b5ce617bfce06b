package handlers

import (
	"github.com/fuseproject/fuse/backend/internal/middleware"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// GroupHandler serves organizations, projects and teams. The kind comes from
// the route group (see WithGroupKind).
type GroupHandler struct {
	groups       *services.GroupService
	applications *services.ApplicationService
}

func NewGroupHandler(m *services.Membership) *GroupHandler {
	return &GroupHandler{groups: m.Groups, applications: m.Applications}
}

// POST /api/{kind}
func (h *GroupHandler) Create(c *gin.Context) {
	var req services.CreateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groups.Create(c.Request.Context(), middleware.GetUserID(c), groupKind(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, group)
}

// GET /api/{kind}
func (h *GroupHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.groups.List(c.Request.Context(), middleware.GetUserID(c), groupKind(c), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// GET /api/{kind}/lookup?name=&owner_email=
func (h *GroupHandler) Lookup(c *gin.Context) {
	group, err := h.groups.FindByNameAndOwner(c.Request.Context(), groupKind(c), c.Query("name"), c.Query("owner_email"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, group)
}

// GET /api/{kind}/:id
func (h *GroupHandler) Get(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	view, err := h.groups.Get(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

// PUT /api/{kind}/:id
func (h *GroupHandler) Update(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	var req services.UpdateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	group, err := h.groups.Update(c.Request.Context(), middleware.GetUserID(c), ref, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, group)
}

// DELETE /api/{kind}/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	if err := h.groups.Delete(c.Request.Context(), middleware.GetUserID(c), ref); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// GET /api/{kind}/:id/can-edit
func (h *GroupHandler) CanEdit(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	editable, err := h.groups.CanEdit(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"can_edit": editable})
}

// GET /api/{kind}/:id/members
func (h *GroupHandler) Members(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	result, err := h.groups.Members(c.Request.Context(), ref, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// memberAction runs op against /:id/members/:memberId.
func (h *GroupHandler) memberAction(c *gin.Context, op func(actorID uint, ref models.GroupRef, memberID uint) error) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	memberID, ok := uintParam(c, "memberId")
	if !ok {
		return
	}
	if err := op(middleware.GetUserID(c), ref, memberID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// POST /api/{kind}/:id/members/:memberId/admin
func (h *GroupHandler) GrantAdmin(c *gin.Context) {
	h.memberAction(c, func(actorID uint, ref models.GroupRef, memberID uint) error {
		return h.groups.GrantAdmin(c.Request.Context(), actorID, ref, memberID)
	})
}

// DELETE /api/{kind}/:id/members/:memberId/admin
func (h *GroupHandler) RevokeAdmin(c *gin.Context) {
	h.memberAction(c, func(actorID uint, ref models.GroupRef, memberID uint) error {
		return h.groups.RevokeAdmin(c.Request.Context(), actorID, ref, memberID)
	})
}

// DELETE /api/{kind}/:id/members/:memberId
func (h *GroupHandler) Kick(c *gin.Context) {
	h.memberAction(c, func(actorID uint, ref models.GroupRef, memberID uint) error {
		return h.groups.Kick(c.Request.Context(), actorID, ref, memberID)
	})
}

// POST /api/organizations/:id/members/:memberId/project-creation
func (h *GroupHandler) GrantProjectCreation(c *gin.Context) {
	h.memberAction(c, func(actorID uint, ref models.GroupRef, memberID uint) error {
		return h.groups.GrantProjectCreation(c.Request.Context(), actorID, ref.ID, memberID)
	})
}

// Join adds the caller directly or files an application, depending on the
// group's restriction.
// POST /api/{kind}/:id/join
func (h *GroupHandler) Join(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	outcome, err := h.groups.Join(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	if outcome.Applied {
		response.Created(c, outcome)
		return
	}
	response.Success(c, outcome)
}

// POST /api/{kind}/:id/applications
func (h *GroupHandler) Apply(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	app, err := h.applications.Apply(c.Request.Context(), middleware.GetUserID(c), ref)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, app)
}

// GET /api/{kind}/:id/applications?status=
func (h *GroupHandler) ListApplicants(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	apps, err := h.applications.ListApplicants(c.Request.Context(), middleware.GetUserID(c), ref, c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, apps)
}

type applicantStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PUT /api/{kind}/:id/applications/:applicationId
func (h *GroupHandler) SetApplicantStatus(c *gin.Context) {
	ref, ok := groupRef(c)
	if !ok {
		return
	}
	appID, ok := uintParam(c, "applicationId")
	if !ok {
		return
	}
	var req applicantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	app, err := h.applications.SetApplicantStatus(c.Request.Context(), middleware.GetUserID(c), ref, appID, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, app)
}
