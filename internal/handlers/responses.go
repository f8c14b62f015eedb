package handlers

import (
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

// CreatedResponse carries the id of a newly created record.
type CreatedResponse struct {
	ID string `json:"id"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// BudgetResponse wraps a single budget.
type BudgetResponse struct {
	Budget *models.Budget `json:"budget"`
}

// BudgetListResponse wraps the caller's budgets, ordered by creation.
type BudgetListResponse struct {
	Budgets []models.Budget `json:"budgets"`
}

// TransactionResponse wraps a single transaction.
type TransactionResponse struct {
	Transaction *models.Transaction `json:"transaction"`
}

// UserResponse wraps a user profile.
type UserResponse struct {
	User *models.User `json:"user"`
}

// UserListResponse wraps the registered users.
type UserListResponse struct {
	Users []models.User `json:"users"`
}

// ActivityListResponse wraps audit log entries.
type ActivityListResponse struct {
	Activity []models.ActivityEntry `json:"activity"`
}

// CurrencyListResponse wraps the supported currencies.
type CurrencyListResponse struct {
	Currencies []models.Currency `json:"currencies"`
}
