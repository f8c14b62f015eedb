package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// ActivityHandler exposes the caller's audit log.
type ActivityHandler struct {
	activityService services.ActivityServicer
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(activityService services.ActivityServicer) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// ActivityQuery bounds the number of entries returned.
type ActivityQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// GetActivity lists the caller's most recent operations.
// @Summary     Activity log
// @Description Most recent operations of the caller, newest first
// @Tags        activity
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Maximum entries (default 50, max 200)"
// @Success     200 {object} ActivityListResponse "Entries"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /activity [get]
func (h *ActivityHandler) GetActivity(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q ActivityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	entries, err := h.activityService.List(c.Request.Context(), userID, q.Limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActivityListResponse{Activity: entries})
}
