package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Larvizub/arvidev-presupuestos/internal/middleware"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/services"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

var errTest = errors.New("connection refused")

// --- mock services ---

type mockUserService struct {
	registerFn              func(email, password, displayName string) (*models.User, error)
	attemptLoginFn          func(email, password string) (*models.User, error)
	getByIDFn               func(id string) (*models.User, error)
	updateProfileFn         func(id, displayName string) (*models.User, error)
	setCurrencyFn           func(id, code string) (*models.User, error)
	storeRefreshTokenHashFn func(id, tokenHash string) error
	getRefreshTokenHashFn   func(id string) (string, error)
	listUsersFn             func() ([]models.User, error)
	setRoleFn               func(actorID, targetID string, role models.Role) (*models.User, error)
}

func (m *mockUserService) Register(_ context.Context, email, password, displayName string) (*models.User, error) {
	if m.registerFn != nil {
		return m.registerFn(email, password, displayName)
	}
	return &models.User{ID: "u1", Email: email}, nil
}

func (m *mockUserService) AttemptLogin(_ context.Context, email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{ID: "u1", Email: email}, nil
}

func (m *mockUserService) GetByID(_ context.Context, id string) (*models.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(id)
	}
	return &models.User{ID: id}, nil
}

func (m *mockUserService) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return &models.User{ID: "u1", Email: email}, nil
}

func (m *mockUserService) UpdateProfile(_ context.Context, id, displayName string) (*models.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(id, displayName)
	}
	return &models.User{ID: id, DisplayName: displayName}, nil
}

func (m *mockUserService) SetCurrency(_ context.Context, id, code string) (*models.User, error) {
	if m.setCurrencyFn != nil {
		return m.setCurrencyFn(id, code)
	}
	return &models.User{ID: id, Currency: code}, nil
}

func (m *mockUserService) StoreRefreshTokenHash(_ context.Context, id, tokenHash string) error {
	if m.storeRefreshTokenHashFn != nil {
		return m.storeRefreshTokenHashFn(id, tokenHash)
	}
	return nil
}

func (m *mockUserService) GetRefreshTokenHash(_ context.Context, id string) (string, error) {
	if m.getRefreshTokenHashFn != nil {
		return m.getRefreshTokenHashFn(id)
	}
	return "", nil
}

func (m *mockUserService) ListUsers(_ context.Context) ([]models.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn()
	}
	return nil, nil
}

func (m *mockUserService) SetRole(_ context.Context, actorID, targetID string, role models.Role) (*models.User, error) {
	if m.setRoleFn != nil {
		return m.setRoleFn(actorID, targetID, role)
	}
	return &models.User{ID: targetID, Role: role}, nil
}

type mockBudgetService struct {
	createFn             func(userID string, in models.BudgetInput) (string, error)
	getFn                func(userID, budgetID string) (*models.Budget, error)
	listForUserFn        func(userID string) ([]models.Budget, error)
	listForUserByMonthFn func(userID string, month, year int) ([]models.Budget, error)
	subscribeForUserFn   func(userID string) (*services.BudgetSubscription, error)
	updateFn             func(userID, budgetID string, patch models.BudgetPatch) (*models.Budget, error)
	shareWithFn          func(budgetID, email, currentUserID string) error
	deleteFn             func(budgetID, userID string) error
}

func (m *mockBudgetService) Create(_ context.Context, userID string, in models.BudgetInput) (string, error) {
	if m.createFn != nil {
		return m.createFn(userID, in)
	}
	return "b1", nil
}

func (m *mockBudgetService) Get(_ context.Context, userID, budgetID string) (*models.Budget, error) {
	if m.getFn != nil {
		return m.getFn(userID, budgetID)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}, OwnerID: userID}, nil
}

func (m *mockBudgetService) ListForUser(_ context.Context, userID string) ([]models.Budget, error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(userID)
	}
	return nil, nil
}

func (m *mockBudgetService) ListForUserByMonth(_ context.Context, userID string, month, year int) ([]models.Budget, error) {
	if m.listForUserByMonthFn != nil {
		return m.listForUserByMonthFn(userID, month, year)
	}
	return nil, nil
}

func (m *mockBudgetService) SubscribeForUser(_ context.Context, userID string) (*services.BudgetSubscription, error) {
	if m.subscribeForUserFn != nil {
		return m.subscribeForUserFn(userID)
	}
	return nil, nil
}

func (m *mockBudgetService) Update(_ context.Context, userID, budgetID string, patch models.BudgetPatch) (*models.Budget, error) {
	if m.updateFn != nil {
		return m.updateFn(userID, budgetID, patch)
	}
	return &models.Budget{Base: models.Base{ID: budgetID}}, nil
}

func (m *mockBudgetService) ShareWith(_ context.Context, budgetID, email, currentUserID string) error {
	if m.shareWithFn != nil {
		return m.shareWithFn(budgetID, email, currentUserID)
	}
	return nil
}

func (m *mockBudgetService) Delete(_ context.Context, budgetID, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(budgetID, userID)
	}
	return nil
}

type mockTransactionService struct {
	createFn         func(budgetID string, in models.TransactionInput) (string, error)
	listFn           func(userID, budgetID string) ([]models.Transaction, error)
	getFn            func(userID, budgetID, transactionID string) (*models.Transaction, error)
	updateFn         func(userID, budgetID, transactionID string, patch models.TransactionPatch) (*models.Transaction, error)
	deleteFn         func(budgetID, transactionID, userID string) error
	listByCategoryFn func(userID, budgetID, category string) ([]models.Transaction, error)
	subscribeFn      func(userID, budgetID string) (*services.TransactionSubscription, error)
}

func (m *mockTransactionService) Create(_ context.Context, budgetID string, in models.TransactionInput) (string, error) {
	if m.createFn != nil {
		return m.createFn(budgetID, in)
	}
	return "t1", nil
}

func (m *mockTransactionService) List(_ context.Context, userID, budgetID string) ([]models.Transaction, error) {
	if m.listFn != nil {
		return m.listFn(userID, budgetID)
	}
	return nil, nil
}

func (m *mockTransactionService) Get(_ context.Context, userID, budgetID, transactionID string) (*models.Transaction, error) {
	if m.getFn != nil {
		return m.getFn(userID, budgetID, transactionID)
	}
	return &models.Transaction{Base: models.Base{ID: transactionID}, BudgetID: budgetID}, nil
}

func (m *mockTransactionService) Update(_ context.Context, userID, budgetID, transactionID string, patch models.TransactionPatch) (*models.Transaction, error) {
	if m.updateFn != nil {
		return m.updateFn(userID, budgetID, transactionID, patch)
	}
	return &models.Transaction{Base: models.Base{ID: transactionID}, BudgetID: budgetID}, nil
}

func (m *mockTransactionService) Delete(_ context.Context, budgetID, transactionID, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(budgetID, transactionID, userID)
	}
	return nil
}

func (m *mockTransactionService) ListByCategory(_ context.Context, userID, budgetID, category string) ([]models.Transaction, error) {
	if m.listByCategoryFn != nil {
		return m.listByCategoryFn(userID, budgetID, category)
	}
	return nil, nil
}

func (m *mockTransactionService) Subscribe(_ context.Context, userID, budgetID string) (*services.TransactionSubscription, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(userID, budgetID)
	}
	return nil, nil
}

type mockDashboardService struct {
	summaryFn func(userID string, month, year *int) (*services.DashboardSummary, error)
}

func (m *mockDashboardService) Summary(_ context.Context, userID string, month, year *int) (*services.DashboardSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(userID, month, year)
	}
	return &services.DashboardSummary{}, nil
}

type mockActivityService struct {
	listFn func(userID string, limit int) ([]models.ActivityEntry, error)
}

func (m *mockActivityService) Log(_ context.Context, _, _ string, _ map[string]any) {}

func (m *mockActivityService) List(_ context.Context, userID string, limit int) ([]models.ActivityEntry, error) {
	if m.listFn != nil {
		return m.listFn(userID, limit)
	}
	return nil, nil
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
