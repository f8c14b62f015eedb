package services

import (
	"errors"
	"time"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

// Storage layout.
const (
	budgetsRoot      = "budgets"
	userBudgetsRoot  = "userBudgets"
	transactionsRoot = "transactions"
	activityRoot     = "userActivity"
	usersRoot        = "users"
	credentialsRoot  = "credentials"
)

func budgetPath(budgetID string) string { return store.Join(budgetsRoot, budgetID) }

func userBudgetsPath(userID string) string { return store.Join(userBudgetsRoot, userID) }

func indexPath(userID, budgetID string) string {
	return store.Join(userBudgetsRoot, userID, budgetID)
}

func transactionsPath(budgetID string) string { return store.Join(transactionsRoot, budgetID) }

func transactionPath(budgetID, transactionID string) string {
	return store.Join(transactionsRoot, budgetID, transactionID)
}

func activityPath(userID string) string { return store.Join(activityRoot, userID) }

func userPath(userID string) string { return store.Join(usersRoot, userID) }

func credentialsPath(userID string) string { return store.Join(credentialsRoot, userID) }

// validID rejects identifiers that cannot be used as a single path segment.
func validID(id string) bool { return store.ValidKey(id) }

// storeError wraps a store failure for handlers. AppErrors pass through.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrStore, err)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
