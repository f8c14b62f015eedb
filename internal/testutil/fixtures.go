package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/uuid"

	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the password of every fixture user.
const TestPassword = "password123"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, st store.Store) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, st, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, st store.Store, email string) *models.User {
	t.Helper()
	return createUser(t, st, email, models.RoleUser)
}

// CreateTestAdmin creates a user with the admin role.
func CreateTestAdmin(t *testing.T, st store.Store) *models.User {
	t.Helper()
	return createUser(t, st, fmt.Sprintf("admin%d@test.com", nextID()), models.RoleAdmin)
}

func createUser(t *testing.T, st store.Store, email string, role models.Role) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: "Test User",
		Role:        role,
		Currency:    models.DefaultCurrency,
		CreatedAt:   time.Now().UTC(),
	}
	err = st.Update(context.Background(), map[string]any{
		store.Join("users", user.ID):       user,
		store.Join("credentials", user.ID): models.Credentials{PasswordHash: string(hash)},
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestBudget stores a budget owned by ownerID for the current month,
// shared with the given users, and writes every index pointer.
func CreateTestBudget(t *testing.T, st store.Store, ownerID string, sharedWith ...string) *models.Budget {
	t.Helper()

	now := time.Now().UTC()
	budget := &models.Budget{
		Base:      models.Base{ID: uuid.New(), CreatedAt: now},
		Name:      fmt.Sprintf("Test Budget %d", nextID()),
		OwnerID:   ownerID,
		Month:     int(now.Month()) - 1,
		Year:      now.Year(),
		IsMonthly: true,
	}
	if len(sharedWith) > 0 {
		budget.SharedWith = make(map[string]bool, len(sharedWith))
		for _, uid := range sharedWith {
			budget.SharedWith[uid] = true
		}
	}

	values := map[string]any{store.Join("budgets", budget.ID): budget}
	for _, uid := range budget.Members() {
		values[store.Join("userBudgets", uid, budget.ID)] = true
	}
	if err := st.Update(context.Background(), values); err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// CreateTestTransaction stores a transaction created by userID at createdAt.
func CreateTestTransaction(
	t *testing.T,
	st store.Store,
	budgetID, userID string,
	txType models.TransactionType,
	amount float64,
	createdAt time.Time,
) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		Base:      models.Base{ID: uuid.New(), CreatedAt: createdAt.UTC()},
		BudgetID:  budgetID,
		Type:      txType,
		Name:      fmt.Sprintf("Test Transaction %d", nextID()),
		Category:  "General",
		Amount:    amount,
		Date:      createdAt.UTC().Format("2006-01-02"),
		CreatedBy: userID,
	}
	if err := st.Set(context.Background(), store.Join("transactions", budgetID, tx.ID), tx); err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}
