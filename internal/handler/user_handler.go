package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/response"
)

type userService interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Suspend(ctx context.Context, userID, reason string) error
}

// SuspendUserRequest carries the reason shown to the suspended user.
type SuspendUserRequest struct {
	Reason string `json:"reason"`
}

// UserHandler exposes the administrative account endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs the handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// Me godoc
// @Summary Get the current user's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Suspend godoc
// @Summary Suspend an account
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body SuspendUserRequest true "Suspension reason"
// @Success 204 {object} nil
// @Router /users/{id}/suspend [post]
func (h *UserHandler) Suspend(c *gin.Context) {
	var req SuspendUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid suspension payload"))
		return
	}
	if err := h.service.Suspend(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
