package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/pagination"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// TransactionFilter holds the optional list filters. Dates are inclusive
// YYYY-MM-DD bounds.
type TransactionFilter struct {
	Category string `form:"category"`
	Type     string `form:"type" binding:"omitempty,transaction_type"`
	From     string `form:"from" binding:"omitempty,ymd_date"`
	To       string `form:"to" binding:"omitempty,ymd_date"`
}

func (f TransactionFilter) match(tx models.Transaction) bool {
	if f.Type != "" && string(tx.Type) != f.Type {
		return false
	}
	if f.From != "" && tx.Date < f.From {
		return false
	}
	if f.To != "" && tx.Date > f.To {
		return false
	}
	return true
}

// CreateTransaction handles the creation of a new transaction
// @Summary     Create a transaction
// @Description Add an income or expense to a budget. Grocery amounts are derived from their unpaid items.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Budget ID"
// @Param       request body models.TransactionInput true "Transaction details"
// @Success     201 {object} CreatedResponse "Transaction created"
// @Failure     400 {object} ErrorResponse "Validation failed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req models.TransactionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	req.UserID = userID

	id, err := h.transactionService.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// GetTransactions handles listing the transactions of a budget
// @Summary     List budget transactions
// @Description Paginated transactions of a budget, newest date first, with optional filters
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Budget ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Param       category  query string false "Filter by category"
// @Param       type      query string false "Filter by type (income, expense)"
// @Param       from      query string false "Filter by start date (YYYY-MM-DD)"
// @Param       to        query string false "Filter by end date (YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/transactions [get]
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter TransactionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ctx := c.Request.Context()
	budgetID := c.Param("id")
	var txs []models.Transaction
	if filter.Category != "" {
		txs, err = h.transactionService.ListByCategory(ctx, userID, budgetID, filter.Category)
	} else {
		txs, err = h.transactionService.List(ctx, userID, budgetID)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	matched := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if filter.match(tx) {
			matched = append(matched, tx)
		}
	}
	services.SortTransactions(matched)

	c.JSON(http.StatusOK, pagination.Slice(matched, page))
}

// StreamTransactions pushes the transaction list of a budget whenever it changes
// @Summary     Stream budget transactions
// @Description Server-sent events carrying the full transaction list after every change
// @Tags        transactions
// @Produce     text/event-stream
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {array}  models.Transaction "Transaction list events"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Router      /budgets/{id}/transactions/stream [get]
func (h *TransactionHandler) StreamTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.transactionService.Subscribe(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	streamSubscription(c, "transactions", sub)
}

// GetTransactionByID handles retrieving one transaction
// @Summary     Get transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path string true "Budget ID"
// @Param       txId path string true "Transaction ID"
// @Success     200 {object} TransactionResponse "Transaction details"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget or transaction not found"
// @Router      /budgets/{id}/transactions/{txId} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.transactionService.Get(c.Request.Context(), userID, c.Param("id"), c.Param("txId"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, TransactionResponse{Transaction: tx})
}

// UpdateTransaction handles partial updates of a transaction
// @Summary     Update transaction
// @Description Change the given fields of a transaction. Changed fields and the resulting amount are validated.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Budget ID"
// @Param       txId    path string                  true "Transaction ID"
// @Param       request body models.TransactionPatch true "Fields to change"
// @Success     200 {object} TransactionResponse "Updated transaction"
// @Failure     400 {object} ErrorResponse "Validation failed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not a member"
// @Failure     404 {object} ErrorResponse "Budget or transaction not found"
// @Router      /budgets/{id}/transactions/{txId} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req models.TransactionPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.transactionService.Update(c.Request.Context(), userID, c.Param("id"), c.Param("txId"), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, TransactionResponse{Transaction: tx})
}

// DeleteTransaction handles deleting a transaction
// @Summary     Delete transaction
// @Description Delete a transaction. Only its creator may do so, within 30 days of creating it.
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path string true "Budget ID"
// @Param       txId path string true "Transaction ID"
// @Success     200 {object} MessageResponse "Transaction deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Not the creator"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     422 {object} ErrorResponse "Transaction too old"
// @Router      /budgets/{id}/transactions/{txId} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.Delete(c.Request.Context(), c.Param("id"), c.Param("txId"), userID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Transaction deleted successfully"})
}
