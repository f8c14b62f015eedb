package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

// ActivityServicer defines the contract for the audit log.
type ActivityServicer interface {
	Log(ctx context.Context, userID, action string, details map[string]any)
	List(ctx context.Context, userID string, limit int) ([]models.ActivityEntry, error)
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	Create(ctx context.Context, userID string, in models.BudgetInput) (string, error)
	Get(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	ListForUser(ctx context.Context, userID string) ([]models.Budget, error)
	ListForUserByMonth(ctx context.Context, userID string, month, year int) ([]models.Budget, error)
	SubscribeForUser(ctx context.Context, userID string) (*BudgetSubscription, error)
	Update(ctx context.Context, userID, budgetID string, patch models.BudgetPatch) (*models.Budget, error)
	ShareWith(ctx context.Context, budgetID, email, currentUserID string) error
	Delete(ctx context.Context, budgetID, userID string) error
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	Create(ctx context.Context, budgetID string, in models.TransactionInput) (string, error)
	List(ctx context.Context, userID, budgetID string) ([]models.Transaction, error)
	Get(ctx context.Context, userID, budgetID, transactionID string) (*models.Transaction, error)
	Update(ctx context.Context, userID, budgetID, transactionID string, patch models.TransactionPatch) (*models.Transaction, error)
	Delete(ctx context.Context, budgetID, transactionID, userID string) error
	ListByCategory(ctx context.Context, userID, budgetID, category string) ([]models.Transaction, error)
	Subscribe(ctx context.Context, userID, budgetID string) (*TransactionSubscription, error)
}

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	Register(ctx context.Context, email, password, displayName string) (*models.User, error)
	AttemptLogin(ctx context.Context, email, password string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, displayName string) (*models.User, error)
	SetCurrency(ctx context.Context, id, code string) (*models.User, error)
	StoreRefreshTokenHash(ctx context.Context, id, tokenHash string) error
	GetRefreshTokenHash(ctx context.Context, id string) (string, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.User, error)
}

// BudgetSummary holds the totals of one budget.
type BudgetSummary struct {
	Budget   models.Budget   `json:"budget"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Count    int             `json:"transactionCount"`
}

// DashboardSummary aggregates the budgets visible to a user.
type DashboardSummary struct {
	Budgets  []BudgetSummary `json:"budgets"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// DashboardServicer defines the contract for dashboard aggregation.
type DashboardServicer interface {
	Summary(ctx context.Context, userID string, month, year *int) (*DashboardSummary, error)
}
