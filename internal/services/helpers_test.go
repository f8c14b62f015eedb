package services

import (
	"testing"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/events"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store/memstore"
	"github.com/Larvizub/arvidev-presupuestos/internal/testutil"
)

// testEnv wires every service to one in-memory store.
type testEnv struct {
	store        *memstore.Store
	published    *events.Recorder
	activity     *activityService
	users        *userService
	budgets      *budgetService
	transactions *transactionService
	dashboard    DashboardServicer
}

func newTestEnv(t *testing.T, adminEmails ...string) *testEnv {
	t.Helper()

	st := testutil.SetupTestStore(t)
	rec := &events.Recorder{}
	activity := NewActivityService(st, rec).(*activityService)
	users := NewUserService(st, activity, adminEmails).(*userService)
	budgets := NewBudgetService(st, users, activity).(*budgetService)
	transactions := NewTransactionService(st, activity).(*transactionService)

	return &testEnv{
		store:        st,
		published:    rec,
		activity:     activity,
		users:        users,
		budgets:      budgets,
		transactions: transactions,
		dashboard:    NewDashboardService(budgets, transactions),
	}
}

// setNow pins the clock of every service.
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.activity.now = clock
	e.users.now = clock
	e.budgets.now = clock
	e.transactions.now = clock
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func budgetInput(name string, month, year int) models.BudgetInput {
	return models.BudgetInput{Name: name, Month: intPtr(month), Year: intPtr(year)}
}

func expenseInput(userID, name string, amount float64) models.TransactionInput {
	return models.TransactionInput{
		UserID:   userID,
		Type:     string(models.TransactionTypeExpense),
		Name:     name,
		Category: "Transporte",
		Amount:   floatPtr(amount),
		Date:     "2024-01-15",
	}
}

func budgetIDs(budgets []models.Budget) []string {
	ids := make([]string, len(budgets))
	for i, b := range budgets {
		ids[i] = b.ID
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// receive waits for the next value of a subscription.
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription update")
	}
	var zero T
	return zero
}
