package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/testutil"
)

func TestHealthAndDocs(t *testing.T) {
	app := setupApp(t, testutil.SetupTestStore(t))

	result := expect(t, app.request("GET", "/api/health", "", ""), http.StatusOK)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result["status"])
	}

	rec := app.request("GET", "/swagger/doc.json", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/budgets/{id}/share") {
		t.Errorf("expected swagger document, got %d", rec.Code)
	}

	rec = app.request("GET", "/api/v1/currencies", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected currencies to be public, got %d", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	app := setupApp(t, testutil.SetupTestStore(t))

	t.Run("protected routes need a token", func(t *testing.T) {
		rec := app.request("GET", "/api/v1/profile", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	access, refresh, userID := app.registerUser(t, "ana@example.com")

	t.Run("profile", func(t *testing.T) {
		result := expect(t, app.request("GET", "/api/v1/profile", "", access), http.StatusOK)
		user := result["user"].(map[string]interface{})
		if user["id"] != userID || user["currency"] != models.DefaultCurrency {
			t.Errorf("unexpected profile: %v", user)
		}
		if _, leaked := user["passwordHash"]; leaked {
			t.Error("profile must not expose the password hash")
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		rec := app.request("POST", "/api/v1/auth/register", `{"email":"ANA@example.com","password":"password123"}`, "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("login", func(t *testing.T) {
		expect(t, app.request("POST", "/api/v1/auth/login", `{"email":"ana@example.com","password":"password123"}`, ""), http.StatusOK)

		rec := app.request("POST", "/api/v1/auth/login", `{"email":"ana@example.com","password":"nope"}`, "")
		if code := errorCode(parseJSON(t, rec)); rec.Code != http.StatusUnauthorized || code != "INVALID_CREDENTIALS" {
			t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d %s", rec.Code, code)
		}
	})

	t.Run("refresh rotation", func(t *testing.T) {
		// login above replaced the refresh token issued at registration
		rec := app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refresh), "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected stale token to be rejected, got %d", rec.Code)
		}

		login := expect(t, app.request("POST", "/api/v1/auth/login", `{"email":"ana@example.com","password":"password123"}`, ""), http.StatusOK)
		current := login["refresh_token"].(string)

		rotated := expect(t, app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, current), ""), http.StatusOK)
		if rotated["refresh_token"] == current {
			t.Error("expected a new refresh token")
		}

		rec = app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, current), "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected reused token to be rejected, got %d", rec.Code)
		}
	})

	t.Run("profile updates", func(t *testing.T) {
		result := expect(t, app.request("PUT", "/api/v1/profile", `{"displayName":"Ana María"}`, access), http.StatusOK)
		if result["user"].(map[string]interface{})["displayName"] != "Ana María" {
			t.Errorf("unexpected profile: %v", result)
		}
		result = expect(t, app.request("PUT", "/api/v1/profile/currency", `{"currency":"CRC"}`, access), http.StatusOK)
		if result["user"].(map[string]interface{})["currency"] != "CRC" {
			t.Errorf("unexpected profile: %v", result)
		}
	})
}

func TestBudgetSharingFlow(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			app := setupApp(t, newStore(t))
			alice, _, _ := app.registerUser(t, "alice@example.com")
			bob, _, bobID := app.registerUser(t, "bob@example.com")
			carol, _, _ := app.registerUser(t, "carol@example.com")

			budgetID := app.createBudget(t, alice, "Casa")

			// Step 1: strangers cannot see the budget
			rec := app.request("GET", "/api/v1/budgets/"+budgetID, "", bob)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403 before sharing, got %d", rec.Code)
			}

			// Step 2: share with bob
			expect(t, app.request("POST", "/api/v1/budgets/"+budgetID+"/share", `{"email":"bob@example.com"}`, alice), http.StatusOK)

			rec = app.request("POST", "/api/v1/budgets/"+budgetID+"/share", `{"email":"alice@example.com"}`, alice)
			if code := errorCode(parseJSON(t, rec)); code != "SELF_SHARE" {
				t.Errorf("expected SELF_SHARE, got %s", code)
			}

			result := expect(t, app.request("GET", "/api/v1/budgets", "", bob), http.StatusOK)
			budgets := result["budgets"].([]interface{})
			if len(budgets) != 1 || budgets[0].(map[string]interface{})["id"] != budgetID {
				t.Fatalf("expected bob to see the shared budget, got %v", budgets)
			}
			shared := budgets[0].(map[string]interface{})["sharedWith"].(map[string]interface{})
			if shared[bobID] != true {
				t.Errorf("expected sharedWith to contain bob, got %v", shared)
			}

			// Step 3: bob records an expense, alice an income
			expect(t, app.request("POST", "/api/v1/budgets/"+budgetID+"/transactions",
				`{"type":"expense","name":"Bus","category":"Transporte","amount":200.35,"date":"2024-01-15"}`, bob), http.StatusCreated)
			expect(t, app.request("POST", "/api/v1/budgets/"+budgetID+"/transactions",
				`{"type":"income","name":"Salario","category":"Salario","amount":1000.1,"date":"2024-01-01"}`, alice), http.StatusCreated)

			rec = app.request("POST", "/api/v1/budgets/"+budgetID+"/transactions",
				`{"type":"expense","name":"","category":"Transporte","date":"15-01-2024"}`, bob)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			fields := parseJSON(t, rec)["error"].(map[string]interface{})["fields"].(map[string]interface{})
			for _, f := range []string{"name", "amount", "date"} {
				if fields[f] == nil {
					t.Errorf("expected a %s field error, got %v", f, fields)
				}
			}

			rec = app.request("POST", "/api/v1/budgets/"+budgetID+"/transactions",
				`{"type":"expense","name":"Bus","category":"Transporte","amount":1,"date":"2024-01-15"}`, carol)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403 for carol, got %d", rec.Code)
			}

			// Step 4: both members see both transactions, newest date first
			result = expect(t, app.request("GET", "/api/v1/budgets/"+budgetID+"/transactions", "", alice), http.StatusOK)
			data := result["data"].([]interface{})
			if len(data) != 2 {
				t.Fatalf("expected 2 transactions, got %d", len(data))
			}
			busTx := data[0].(map[string]interface{})
			if busTx["name"] != "Bus" {
				t.Errorf("expected Bus first, got %v", busTx["name"])
			}
			busID := busTx["id"].(string)

			// Step 5: dashboard totals
			result = expect(t, app.request("GET", "/api/v1/dashboard", "", bob), http.StatusOK)
			if result["income"] != "1000.1" || result["expenses"] != "200.35" || result["balance"] != "799.75" {
				t.Errorf("unexpected totals: %v", result)
			}

			// Step 6: only the creator deletes a transaction
			rec = app.request("DELETE", "/api/v1/budgets/"+budgetID+"/transactions/"+busID, "", alice)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403 for alice, got %d", rec.Code)
			}
			expect(t, app.request("DELETE", "/api/v1/budgets/"+budgetID+"/transactions/"+busID, "", bob), http.StatusOK)

			// Step 7: only the owner deletes the budget, which disappears for everyone
			rec = app.request("DELETE", "/api/v1/budgets/"+budgetID, "", bob)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403 for bob, got %d", rec.Code)
			}
			expect(t, app.request("DELETE", "/api/v1/budgets/"+budgetID, "", alice), http.StatusOK)

			result = expect(t, app.request("GET", "/api/v1/budgets", "", bob), http.StatusOK)
			if n := len(result["budgets"].([]interface{})); n != 0 {
				t.Errorf("expected no budgets for bob, got %d", n)
			}
			rec = app.request("GET", "/api/v1/budgets/"+budgetID, "", alice)
			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404 after delete, got %d", rec.Code)
			}

			// Step 8: the audit log saw everything
			result = expect(t, app.request("GET", "/api/v1/activity", "", alice), http.StatusOK)
			actions := map[string]bool{}
			for _, e := range result["activity"].([]interface{}) {
				actions[e.(map[string]interface{})["action"].(string)] = true
			}
			for _, a := range []string{models.ActionCreateBudget, models.ActionShareBudget, models.ActionCreateTransaction, models.ActionDeleteBudget} {
				if !actions[a] {
					t.Errorf("expected %s in alice's activity, got %v", a, actions)
				}
			}
			if len(app.Published.Messages()) == 0 {
				t.Error("expected activity to be published")
			}
		})
	}
}

func TestAdminFlow(t *testing.T) {
	app := setupApp(t, testutil.SetupTestStore(t))
	admin, _, _ := app.registerUser(t, adminEmail)
	user, _, userID := app.registerUser(t, "user@example.com")

	rec := app.request("GET", "/api/v1/admin/users", "", user)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non admins, got %d", rec.Code)
	}

	result := expect(t, app.request("GET", "/api/v1/admin/users", "", admin), http.StatusOK)
	if n := len(result["users"].([]interface{})); n != 2 {
		t.Errorf("expected 2 users, got %d", n)
	}

	result = expect(t, app.request("PUT", "/api/v1/admin/users/"+userID+"/role", `{"role":"admin"}`, admin), http.StatusOK)
	if result["user"].(map[string]interface{})["role"] != "admin" {
		t.Errorf("expected promoted user, got %v", result)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupApp(t, testutil.SetupTestStore(t))
	app.registerUser(t, "metrics@example.com")

	rec := app.request("GET", "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"presupuestos_http_requests_total", "presupuestos_store_operations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

// readEvents forwards the data lines of an event stream to a channel.
func readEvents(body io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
				out <- data
			}
		}
	}()
	return out
}

func TestBudgetStreamFlow(t *testing.T) {
	st := testutil.SetupTestStore(t)
	app := setupApp(t, st)
	alice, _, _ := app.registerUser(t, "alice@example.com")
	bob, _, _ := app.registerUser(t, "bob@example.com")

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/budgets/stream?access_token="+bob, nil)
	testutil.AssertNoError(t, err)
	resp, err := srv.Client().Do(req)
	testutil.AssertNoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	events := readEvents(resp.Body)
	timeout := time.After(5 * time.Second)

	select {
	case <-events:
	case <-timeout:
		t.Fatal("no initial event")
	}

	budgetID := app.createBudget(t, alice, "Viaje")
	expect(t, app.request("POST", "/api/v1/budgets/"+budgetID+"/share", `{"email":"bob@example.com"}`, alice), http.StatusOK)

	for found := false; !found; {
		select {
		case data, ok := <-events:
			if !ok {
				t.Fatal("stream closed early")
			}
			found = strings.Contains(data, budgetID)
		case <-timeout:
			t.Fatal("shared budget never streamed to bob")
		}
	}

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for st.Subscribers() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriptions to be released, %d still open", st.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
