package handlers

import (
	"strconv"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

const contextGroupKind = "group_kind"

// WithGroupKind tags a route group with the kind of group it serves, so one
// handler covers organizations, projects and teams.
func WithGroupKind(kind models.GroupKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextGroupKind, kind)
		c.Next()
	}
}

func groupKind(c *gin.Context) models.GroupKind {
	if v, ok := c.Get(contextGroupKind); ok {
		return v.(models.GroupKind)
	}
	kind, _ := models.ParseGroupKind(c.Param("kind"))
	return kind
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// groupRef reads the group addressed by /:id under a kind-tagged route.
func groupRef(c *gin.Context) (models.GroupRef, bool) {
	kind := groupKind(c)
	if !kind.Valid() {
		response.BadRequest(c, "invalid group kind")
		return models.GroupRef{}, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return models.GroupRef{}, false
	}
	return models.GroupRef{Kind: kind, ID: id}, true
}

// pageParams reads page and page_size. The services clamp them.
func pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page"))
	pageSize, _ = strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}
