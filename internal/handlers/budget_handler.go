package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// BudgetHandler handles budget-related requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

// ShareBudgetRequest represents the request payload for sharing a budget.
type ShareBudgetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CreateBudget handles the creation of a new budget.
// @Summary     Create a budget
// @Description Create a budget owned by the caller. Month and year default to the current ones.
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.BudgetInput true "Budget details"
// @Success     201 {object} CreatedResponse "Budget created"
// @Failure     400 {object} ErrorResponse "Validation failed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Store error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req models.BudgetInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	id, err := h.budgetService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// GetBudgets handles listing the caller's budgets.
// @Summary     List budgets
// @Description List owned and shared budgets, oldest first. Both month and year must be given to filter.
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       month query int false "Month (0-11)"
// @Param       year  query int false "Year"
// @Success     200 {object} BudgetListResponse "Budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Store error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
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

	var budgets []models.Budget
	ctx := c.Request.Context()
	switch {
	case month != nil && year != nil:
		budgets, err = h.budgetService.ListForUserByMonth(ctx, userID, *month, *year)
	case month == nil && year == nil:
		budgets, err = h.budgetService.ListForUser(ctx, userID)
	default:
		err = apperrors.WithMessage(apperrors.ErrInvalidInput, "month and year must be given together")
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetListResponse{Budgets: budgets})
}

// StreamBudgets pushes the caller's budget list whenever it changes.
// @Summary     Stream budgets
// @Description Server-sent events carrying the full budget list after every change
// @Tags        budgets
// @Produce     text/event-stream
// @Security    BearerAuth
// @Success     200 {array}  models.Budget "Budget list events"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Store error"
// @Router      /budgets/stream [get]
func (h *BudgetHandler) StreamBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.budgetService.SubscribeForUser(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	streamSubscription(c, "budgets", sub)
}

// GetBudget handles retrieving a specific budget.
// @Summary     Get budget by ID
// @Description Get a budget the caller owns or has been shared
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} BudgetResponse "Budget details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetResponse{Budget: budget})
}

// UpdateBudget handles updating an existing budget.
// @Summary     Update budget
// @Description Change the name, description or period of a budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Budget ID"
// @Param       request body models.BudgetPatch true "Fields to change"
// @Success     200 {object} BudgetResponse "Updated budget"
// @Failure     400 {object} ErrorResponse "Validation failed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req models.BudgetPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	budget, err := h.budgetService.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetResponse{Budget: budget})
}

// ShareBudget handles sharing a budget with another user.
// @Summary     Share budget
// @Description Give the user registered with email access to the budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Budget ID"
// @Param       request body ShareBudgetRequest true "Recipient email"
// @Success     200 {object} MessageResponse "Budget shared"
// @Failure     400 {object} ErrorResponse "Invalid input or self share"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget or user not found"
// @Failure     502 {object} ErrorResponse "Store error or partial share"
// @Router      /budgets/{id}/share [post]
func (h *BudgetHandler) ShareBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ShareBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.budgetService.ShareWith(c.Request.Context(), c.Param("id"), req.Email, userID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Budget shared successfully"})
}

// DeleteBudget handles deleting a budget.
// @Summary     Delete budget
// @Description Delete a budget with its transactions and every member's index entry
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} MessageResponse "Budget deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Only the owner can delete"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.budgetService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Budget deleted successfully"})
}
