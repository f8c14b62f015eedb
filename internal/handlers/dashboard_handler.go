package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// DashboardHandler serves the aggregated totals.
type DashboardHandler struct {
	dashboardService services.DashboardServicer
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService services.DashboardServicer) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetDashboard returns income, expenses and balance per budget and overall.
// @Summary     Dashboard totals
// @Description Totals over every visible budget, optionally restricted to a month and/or year
// @Tags        dashboard
// @Produce     json
// @Security    BearerAuth
// @Param       month query int false "Month (0-11)"
// @Param       year  query int false "Year"
// @Success     200 {object} services.DashboardSummary "Totals"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Store error"
// @Router      /dashboard [get]
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	month, year, err := parseMonthYear(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.dashboardService.Summary(c.Request.Context(), userID, month, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
