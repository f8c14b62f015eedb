package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// AdminHandler handles user administration.
type AdminHandler struct {
	userService services.UserServicer
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(userService services.UserServicer) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// SetRoleRequest represents the role change payload.
type SetRoleRequest struct {
	Role models.Role `json:"role" binding:"required,role"`
}

// ListUsers lists every registered user.
// @Summary     List users
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} UserListResponse "Users ordered by email"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admins only"
// @Router      /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserListResponse{Users: users})
}

// SetRole changes the role of another user.
// @Summary     Change user role
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string         true "User ID"
// @Param       request body SetRoleRequest true "New role"
// @Success     200 {object} UserResponse "Updated user"
// @Failure     400 {object} ErrorResponse "Invalid role or own role"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admins only"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /admin/users/{id}/role [put]
func (h *AdminHandler) SetRole(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.SetRole(c.Request.Context(), actorID, c.Param("id"), req.Role)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{User: user})
}
