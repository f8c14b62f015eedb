package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Larvizub/arvidev-presupuestos/internal/events"
	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/metrics"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/store/sqlstore"
	"github.com/Larvizub/arvidev-presupuestos/internal/testutil"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

const adminEmail = "boss@example.com"

// testApp holds the full application stack for flow tests.
type testApp struct {
	Store     store.Store
	Router    *gin.Engine
	Metrics   *metrics.Metrics
	Published *events.Recorder
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// backends lists the stores every flow runs against.
var backends = map[string]func(t *testing.T) store.Store{
	"memory": func(t *testing.T) store.Store { return testutil.SetupTestStore(t) },
	"sqlite": func(t *testing.T) store.Store {
		st := sqlstore.New(testutil.SetupTestDB(t))
		t.Cleanup(func() { _ = st.Close() })
		return st
	},
}

// setupApp builds the router over st with metrics enabled.
func setupApp(t *testing.T, st store.Store) *testApp {
	t.Helper()

	m := metrics.New()
	rec := &events.Recorder{}
	instrumented := metrics.InstrumentStore(st, m)
	svc := NewServices(instrumented, rec, []string{adminEmail})

	return &testApp{
		Store:     st,
		Router:    NewRouter(svc, m),
		Metrics:   m,
		Published: rec,
	}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// expect fails the test unless rec has the wanted status, and returns the
// parsed body.
func expect(t *testing.T, rec *httptest.ResponseRecorder, want int) map[string]interface{} {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func errorCode(result map[string]interface{}) string {
	errObj, _ := result["error"].(map[string]interface{})
	code, _ := errObj["code"].(string)
	return code
}

// registerUser registers a new user and returns the access token, refresh
// token and user ID.
func (app *testApp) registerUser(t *testing.T, email string) (accessToken, refreshToken, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"password123","displayName":"Test"}`, email)
	result := expect(t, app.request("POST", "/api/v1/auth/register", body, ""), http.StatusCreated)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(string)
}

// createBudget creates a budget for the current month and returns its id.
func (app *testApp) createBudget(t *testing.T, token, name string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q}`, name)
	result := expect(t, app.request("POST", "/api/v1/budgets", body, token), http.StatusCreated)
	return result["id"].(string)
}
