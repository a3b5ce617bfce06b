package handlers

import (
	"errors"

	"github.com/fuseproject/fuse/backend/internal/services"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// toAppError maps a service error to its HTTP form. Errors outside the
// business taxonomy become a generic 500 so storage details do not leak.
func toAppError(err error) *response.AppError {
	var appErr *response.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var be *services.BusinessError
	if !errors.As(err, &be) {
		return response.NewServerError("internal server error")
	}

	var base *response.AppError
	switch {
	case errors.Is(err, services.ErrInvalidSession):
		base = response.NewUnauthorized("invalid session")
	case errors.Is(err, services.ErrInsufficientPrivileges):
		base = response.NewForbidden("insufficient privileges")
	case errors.Is(err, services.ErrNotAllowed):
		base = response.NewForbidden("not allowed")
	case errors.Is(err, services.ErrNotFound):
		base = response.NewNotFound("not found")
	case errors.Is(err, services.ErrInvalidFields):
		base = response.NewBadRequest("invalid fields")
	case errors.Is(err, services.ErrInvalidTime):
		base = response.NewBadRequest("invalid time")
	case errors.Is(err, services.ErrDuplicateApplication):
		base = response.NewConflict("duplicate application")
	case errors.Is(err, services.ErrAlreadyJoinedOrInvited):
		base = response.NewConflict("already joined or invited")
	case errors.Is(err, services.ErrAlreadyJoined):
		base = response.NewConflict("already joined")
	case errors.Is(err, services.ErrInterviewNotAvailable):
		base = response.NewUnprocessable("interview not available")
	default:
		base = response.NewServerError("server error")
	}
	return base.WithDetails(services.Messages(err)...)
}

// fail writes err and logs the ones that are not the caller's fault.
func fail(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	response.Error(c, appErr)
}
