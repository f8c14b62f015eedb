package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/store/memstore"
	"github.com/Larvizub/arvidev-presupuestos/internal/testutil"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

var errRejected = errors.New("rejected by rule")

func pointerExists(t *testing.T, st store.Store, userID, budgetID string) bool {
	t.Helper()
	snap, err := st.Get(context.Background(), indexPath(userID, budgetID))
	testutil.AssertNoError(t, err)
	return snap.Exists()
}

func TestCreateBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		id, err := env.budgets.Create(ctx, owner.ID, budgetInput("Enero", 0, 2024))
		testutil.AssertNoError(t, err)

		budget, err := env.budgets.Get(ctx, owner.ID, id)
		testutil.AssertNoError(t, err)
		if budget.OwnerID != owner.ID {
			t.Errorf("expected owner %s, got %s", owner.ID, budget.OwnerID)
		}
		if budget.Month != 0 || budget.Year != 2024 {
			t.Errorf("expected 0/2024, got %d/%d", budget.Month, budget.Year)
		}
		if !budget.IsMonthly {
			t.Error("expected isMonthly to default to true")
		}
		if !pointerExists(t, env.store, owner.ID, id) {
			t.Error("expected owner index pointer")
		}

		msgs := env.published.Messages()
		if len(msgs) != 1 || msgs[0].Action != models.ActionCreateBudget {
			t.Fatalf("expected one createbudget message, got %+v", msgs)
		}
		if msgs[0].Details["budgetId"] != id {
			t.Errorf("expected budgetId %s in details, got %v", id, msgs[0].Details["budgetId"])
		}
	})

	t.Run("defaults_month_and_year", func(t *testing.T) {
		env := newTestEnv(t)
		env.setNow(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
		owner := testutil.CreateTestUser(t, env.store)

		id, err := env.budgets.Create(ctx, owner.ID, models.BudgetInput{Name: "Marzo"})
		testutil.AssertNoError(t, err)

		budget, err := env.budgets.Get(ctx, owner.ID, id)
		testutil.AssertNoError(t, err)
		if budget.Month != 2 || budget.Year != 2025 {
			t.Errorf("expected 2/2025, got %d/%d", budget.Month, budget.Year)
		}
	})

	t.Run("explicit_not_monthly", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		in := budgetInput("Viaje", 5, 2024)
		in.IsMonthly = boolPtr(false)
		id, err := env.budgets.Create(ctx, owner.ID, in)
		testutil.AssertNoError(t, err)

		budget, err := env.budgets.Get(ctx, owner.ID, id)
		testutil.AssertNoError(t, err)
		if budget.IsMonthly {
			t.Error("expected isMonthly false")
		}
	})

	t.Run("shared_users_get_pointers", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)

		in := budgetInput("Casa", 1, 2024)
		in.SharedWith = map[string]bool{friend.ID: true, owner.ID: true}
		id, err := env.budgets.Create(ctx, owner.ID, in)
		testutil.AssertNoError(t, err)

		if !pointerExists(t, env.store, friend.ID, id) {
			t.Error("expected shared user index pointer")
		}
		budget, err := env.budgets.Get(ctx, friend.ID, id)
		testutil.AssertNoError(t, err)
		if budget.SharedWith[owner.ID] {
			t.Error("owner should not be listed in sharedWith")
		}
	})

	t.Run("sanitizes_text", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		id, err := env.budgets.Create(ctx, owner.ID, budgetInput("<script>", 0, 2024))
		testutil.AssertNoError(t, err)

		budget, err := env.budgets.Get(ctx, owner.ID, id)
		testutil.AssertNoError(t, err)
		if budget.Name != "&lt;script&gt;" {
			t.Errorf("expected escaped name, got %q", budget.Name)
		}
	})

	t.Run("validation_failed", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		_, err := env.budgets.Create(ctx, owner.ID, budgetInput("  ", 12, 1999))
		testutil.AssertFieldErrors(t, err, "name", "month", "year")
		snap, err := env.store.Get(ctx, budgetsRoot)
		testutil.AssertNoError(t, err)
		if snap.Exists() {
			t.Error("expected nothing to be written")
		}
	})
}

func TestGetBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("not_found", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		_, err := env.budgets.Get(ctx, owner.ID, "missing")
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})

	t.Run("forbidden_for_stranger", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		stranger := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		_, err := env.budgets.Get(ctx, stranger.ID, budget.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("owner_and_shared_scenario", func(t *testing.T) {
		env := newTestEnv(t)
		a := testutil.CreateTestUser(t, env.store)
		b := testutil.CreateTestUser(t, env.store)

		id, err := env.budgets.Create(ctx, a.ID, budgetInput("Enero", 0, 2024))
		testutil.AssertNoError(t, err)

		list, err := env.budgets.ListForUser(ctx, a.ID)
		testutil.AssertNoError(t, err)
		if len(list) != 1 || list[0].ID != id || list[0].OwnerID != a.ID {
			t.Fatalf("expected owned budget %s, got %+v", id, list)
		}

		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, id, b.Email, a.ID))

		list, err = env.budgets.ListForUser(ctx, b.ID)
		testutil.AssertNoError(t, err)
		if !containsID(budgetIDs(list), id) {
			t.Fatalf("expected shared budget %s in %v", id, budgetIDs(list))
		}

		err = env.budgets.Delete(ctx, id, b.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("missing_index_pointers", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)

		testutil.AssertNoError(t, env.store.Remove(ctx, userBudgetsRoot))

		for _, uid := range []string{owner.ID, friend.ID} {
			list, err := env.budgets.ListForUser(ctx, uid)
			testutil.AssertNoError(t, err)
			if len(list) != 1 || list[0].ID != budget.ID {
				t.Errorf("expected %s for user %s, got %v", budget.ID, uid, budgetIDs(list))
			}
		}
	})

	t.Run("stale_pointer_is_ignored", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		other := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, other.ID)

		testutil.AssertNoError(t, env.store.Set(ctx, indexPath(owner.ID, budget.ID), true))
		testutil.AssertNoError(t, env.store.Set(ctx, indexPath(owner.ID, "gone"), true))

		list, err := env.budgets.ListForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		if len(list) != 0 {
			t.Errorf("expected no budgets, got %v", budgetIDs(list))
		}
	})

	t.Run("sorted_and_deduplicated", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		for range 3 {
			testutil.CreateTestBudget(t, env.store, owner.ID)
		}

		list, err := env.budgets.ListForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		if len(list) != 3 {
			t.Fatalf("expected 3 budgets, got %d", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].ID >= list[i].ID {
				t.Errorf("expected ascending ids, got %v", budgetIDs(list))
			}
		}
	})

	t.Run("one_source_failing", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		env.store.SetFault(func(op memstore.Op, _ string) error {
			if op == memstore.OpQuery {
				return errRejected
			}
			return nil
		})

		list, err := env.budgets.ListForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		if len(list) != 1 || list[0].ID != budget.ID {
			t.Errorf("expected index result, got %v", budgetIDs(list))
		}
	})

	t.Run("all_sources_failing", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		testutil.CreateTestBudget(t, env.store, owner.ID)

		env.store.SetFault(func(memstore.Op, string) error { return errRejected })

		_, err := env.budgets.ListForUser(ctx, owner.ID)
		testutil.AssertAppError(t, err, "STORE_ERROR")
		if !errors.Is(err, errRejected) {
			t.Errorf("expected wrapped store error, got %v", err)
		}
	})
}

func TestListForUserByMonth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := testutil.CreateTestUser(t, env.store)

	jan, err := env.budgets.Create(ctx, owner.ID, budgetInput("Enero", 0, 2024))
	testutil.AssertNoError(t, err)
	_, err = env.budgets.Create(ctx, owner.ID, budgetInput("Febrero", 1, 2024))
	testutil.AssertNoError(t, err)
	_, err = env.budgets.Create(ctx, owner.ID, budgetInput("Enero", 0, 2025))
	testutil.AssertNoError(t, err)

	list, err := env.budgets.ListForUserByMonth(ctx, owner.ID, 0, 2024)
	testutil.AssertNoError(t, err)
	if len(list) != 1 || list[0].ID != jan {
		t.Errorf("expected only %s, got %v", jan, budgetIDs(list))
	}
}

func TestUpdateBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("shared_member_can_update", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)

		updated, err := env.budgets.Update(ctx, friend.ID, budget.ID, models.BudgetPatch{
			Name:  strPtr("Casa & gastos"),
			Month: intPtr(6),
		})
		testutil.AssertNoError(t, err)
		if updated.Name != "Casa &amp; gastos" {
			t.Errorf("expected sanitized name, got %q", updated.Name)
		}
		if updated.Month != 6 {
			t.Errorf("expected month 6, got %d", updated.Month)
		}
		if updated.OwnerID != owner.ID {
			t.Errorf("owner changed to %s", updated.OwnerID)
		}
		if updated.UpdatedAt == nil {
			t.Error("expected updatedAt to be set")
		}
	})

	t.Run("stranger_forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		stranger := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		_, err := env.budgets.Update(ctx, stranger.ID, budget.ID, models.BudgetPatch{Name: strPtr("Mine")})
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("invalid_merge", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		_, err := env.budgets.Update(ctx, owner.ID, budget.ID, models.BudgetPatch{Month: intPtr(12)})
		testutil.AssertFieldErrors(t, err, "month")
	})

	t.Run("stored_escaped_text_past_limit", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		// 96 characters as typed, 108 once escaped.
		name := "A&B&C&" + strings.Repeat("x", 90)
		id, err := env.budgets.Create(ctx, owner.ID, budgetInput(name, 3, 2024))
		testutil.AssertNoError(t, err)

		updated, err := env.budgets.Update(ctx, owner.ID, id, models.BudgetPatch{IsMonthly: boolPtr(false)})
		testutil.AssertNoError(t, err)
		if updated.IsMonthly {
			t.Error("expected isMonthly to be false")
		}
		if updated.Name != validator.SanitizeString(name) {
			t.Errorf("expected stored name to be untouched, got %q", updated.Name)
		}

		_, err = env.budgets.Update(ctx, owner.ID, id, models.BudgetPatch{Name: strPtr(" ")})
		testutil.AssertFieldErrors(t, err, "name")
	})
}

func TestShareWith(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, budget.ID, friend.Email, owner.ID))
		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, budget.ID, strings.ToUpper(friend.Email), owner.ID))

		if !pointerExists(t, env.store, friend.ID, budget.ID) {
			t.Error("expected index pointer after sharing twice")
		}
		got, err := env.budgets.Get(ctx, friend.ID, budget.ID)
		testutil.AssertNoError(t, err)
		if !got.SharedWith[friend.ID] {
			t.Error("expected friend in sharedWith")
		}
	})

	t.Run("repairs_missing_pointer", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)

		testutil.AssertNoError(t, env.store.Remove(ctx, indexPath(friend.ID, budget.ID)))
		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, budget.ID, friend.Email, owner.ID))

		if !pointerExists(t, env.store, friend.ID, budget.ID) {
			t.Error("expected pointer to be repaired")
		}
	})

	t.Run("member_can_share", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		third := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)

		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, budget.ID, third.Email, friend.ID))
		if !pointerExists(t, env.store, third.ID, budget.ID) {
			t.Error("expected pointer for third user")
		}
	})

	t.Run("self_share", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		err := env.budgets.ShareWith(ctx, budget.ID, owner.Email, owner.ID)
		testutil.AssertAppError(t, err, "SELF_SHARE")
	})

	t.Run("unknown_email", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		err := env.budgets.ShareWith(ctx, budget.ID, "nobody@test.com", owner.ID)
		testutil.AssertAppError(t, err, "USER_NOT_FOUND")
	})

	t.Run("stranger_forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		stranger := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		err := env.budgets.ShareWith(ctx, budget.ID, stranger.Email, stranger.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("missing_budget", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		err := env.budgets.ShareWith(ctx, "missing", owner.Email, owner.ID)
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})

	t.Run("atomic_update_rejected", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		env.store.SetFault(func(op memstore.Op, _ string) error {
			if op == memstore.OpUpdate {
				return errRejected
			}
			return nil
		})

		testutil.AssertNoError(t, env.budgets.ShareWith(ctx, budget.ID, friend.Email, owner.ID))
		if !pointerExists(t, env.store, friend.ID, budget.ID) {
			t.Error("expected pointer from sequential fallback")
		}
	})

	t.Run("fallback_first_step_fails", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		env.store.SetFault(func(op memstore.Op, path string) error {
			if op == memstore.OpUpdate || (op == memstore.OpSet && strings.HasPrefix(path, budgetsRoot+"/")) {
				return errRejected
			}
			return nil
		})

		err := env.budgets.ShareWith(ctx, budget.ID, friend.Email, owner.ID)
		testutil.AssertAppError(t, err, "STORE_ERROR")
	})

	t.Run("fallback_second_step_fails", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)

		env.store.SetFault(func(op memstore.Op, path string) error {
			if op == memstore.OpUpdate || (op == memstore.OpSet && strings.HasPrefix(path, userBudgetsRoot+"/")) {
				return errRejected
			}
			return nil
		})

		err := env.budgets.ShareWith(ctx, budget.ID, friend.Email, owner.ID)
		testutil.AssertAppError(t, err, "SHARE_PARTIAL")

		env.store.SetFault(nil)
		got, err := env.budgets.Get(ctx, friend.ID, budget.ID)
		testutil.AssertNoError(t, err)
		if !got.SharedWith[friend.ID] {
			t.Error("expected the first step to have landed")
		}
	})
}

func TestDeleteBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)
		tx1 := testutil.CreateTestTransaction(t, env.store, budget.ID, owner.ID, models.TransactionTypeIncome, 100, time.Now())
		tx2 := testutil.CreateTestTransaction(t, env.store, budget.ID, friend.ID, models.TransactionTypeExpense, 40, time.Now())

		testutil.AssertNoError(t, env.budgets.Delete(ctx, budget.ID, owner.ID))

		snap, err := env.store.Get(ctx, transactionsPath(budget.ID))
		testutil.AssertNoError(t, err)
		if snap.Exists() {
			t.Error("expected transactions to be removed")
		}
		for _, id := range []string{tx1.ID, tx2.ID} {
			tx, err := env.transactions.load(ctx, budget.ID, id)
			if tx != nil {
				t.Errorf("expected transaction %s to be gone", id)
			}
			testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
		}
		txs, err := env.transactions.List(ctx, owner.ID, budget.ID)
		testutil.AssertNoError(t, err)
		if len(txs) != 0 {
			t.Errorf("expected no transactions after delete, got %d", len(txs))
		}

		for _, uid := range []string{owner.ID, friend.ID} {
			if pointerExists(t, env.store, uid, budget.ID) {
				t.Errorf("expected pointer of %s to be removed", uid)
			}
		}

		msgs := env.published.Messages()
		if last := msgs[len(msgs)-1]; last.Action != models.ActionDeleteBudget {
			t.Errorf("expected deletebudget to be logged, got %s", last.Action)
		}
	})

	t.Run("shared_member_forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		friend := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID, friend.ID)

		err := env.budgets.Delete(ctx, budget.ID, friend.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")

		if _, err := env.budgets.Get(ctx, owner.ID, budget.ID); err != nil {
			t.Errorf("budget should still exist: %v", err)
		}
	})

	t.Run("legacy_creator_can_delete", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		creator := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)
		testutil.AssertNoError(t, env.store.Set(ctx, store.Join(budgetPath(budget.ID), "createdBy"), creator.ID))

		testutil.AssertNoError(t, env.budgets.Delete(ctx, budget.ID, creator.ID))

		_, err := env.budgets.Get(ctx, owner.ID, budget.ID)
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})

	t.Run("not_found", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		err := env.budgets.Delete(ctx, "missing", owner.ID)
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})
}

func TestSubscribeForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers_changes_in_order", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		sub, err := env.budgets.SubscribeForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		defer sub.Cancel()

		if initial := receive(t, sub.Updates()); len(initial) != 0 {
			t.Fatalf("expected empty initial list, got %v", budgetIDs(initial))
		}

		first, err := env.budgets.Create(ctx, owner.ID, budgetInput("Uno", 0, 2024))
		testutil.AssertNoError(t, err)
		if got := budgetIDs(receive(t, sub.Updates())); len(got) != 1 || got[0] != first {
			t.Fatalf("expected [%s], got %v", first, got)
		}

		second, err := env.budgets.Create(ctx, owner.ID, budgetInput("Dos", 1, 2024))
		testutil.AssertNoError(t, err)
		got := budgetIDs(receive(t, sub.Updates()))
		if len(got) != 2 || !containsID(got, second) {
			t.Fatalf("expected both budgets, got %v", got)
		}
	})

	t.Run("falls_back_to_owned_budgets", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		budget := testutil.CreateTestBudget(t, env.store, owner.ID)
		testutil.AssertNoError(t, env.store.Remove(ctx, userBudgetsPath(owner.ID)))

		sub, err := env.budgets.SubscribeForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		defer sub.Cancel()

		if got := budgetIDs(receive(t, sub.Updates())); len(got) != 1 || got[0] != budget.ID {
			t.Fatalf("expected owned budget, got %v", got)
		}
	})

	t.Run("falls_back_only_once", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)
		testutil.CreateTestBudget(t, env.store, owner.ID)
		testutil.AssertNoError(t, env.store.Remove(ctx, userBudgetsPath(owner.ID)))

		var queries atomic.Int32
		env.store.SetFault(func(op memstore.Op, _ string) error {
			if op == memstore.OpQuery {
				queries.Add(1)
			}
			return nil
		})

		sub, err := env.budgets.SubscribeForUser(ctx, owner.ID)
		testutil.AssertNoError(t, err)
		defer sub.Cancel()

		if got := receive(t, sub.Updates()); len(got) != 1 {
			t.Fatalf("expected owned budget first, got %v", budgetIDs(got))
		}

		stale := indexPath(owner.ID, "stale")
		testutil.AssertNoError(t, env.store.Set(ctx, stale, true))
		if got := receive(t, sub.Updates()); len(got) != 0 {
			t.Fatalf("expected dangling pointer to resolve to nothing, got %v", budgetIDs(got))
		}
		testutil.AssertNoError(t, env.store.Remove(ctx, stale))
		if got := receive(t, sub.Updates()); len(got) != 0 {
			t.Fatalf("expected empty list, got %v", budgetIDs(got))
		}
		if n := queries.Load(); n != 1 {
			t.Errorf("expected one owner query, got %d", n)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		env := newTestEnv(t)
		owner := testutil.CreateTestUser(t, env.store)

		subCtx, cancel := context.WithCancel(ctx)
		sub, err := env.budgets.SubscribeForUser(subCtx, owner.ID)
		testutil.AssertNoError(t, err)
		receive(t, sub.Updates())

		// The caller context does not end the subscription.
		cancel()
		if env.store.Subscribers() != 1 {
			t.Fatalf("expected 1 subscriber, got %d", env.store.Subscribers())
		}

		sub.Cancel()
		sub.Cancel()
		if env.store.Subscribers() != 0 {
			t.Errorf("expected registration to be released, got %d", env.store.Subscribers())
		}

		select {
		case _, ok := <-sub.Updates():
			if ok {
				// A value already in flight may still arrive once.
				if _, ok := <-sub.Updates(); ok {
					t.Error("expected updates to be closed")
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatal("updates not closed after cancel")
		}
	})
}
