// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("set_and_get", func(t *testing.T) { testSetGet(t, newStore(t)) })
	t.Run("set_nil_removes", func(t *testing.T) { testSetNil(t, newStore(t)) })
	t.Run("update_multi_path", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("remove_subtree", func(t *testing.T) { testRemove(t, newStore(t)) })
	t.Run("push_keys_are_ordered", func(t *testing.T) { testPush(t, newStore(t)) })
	t.Run("query_by_child", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("lists_round_trip", func(t *testing.T) { testLists(t, newStore(t)) })
	t.Run("invalid_paths", func(t *testing.T) { testInvalid(t, newStore(t)) })
	t.Run("subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func mustGet(t *testing.T, s store.Store, path string) store.Snapshot {
	t.Helper()
	snap, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("get %q: %v", path, err)
	}
	return snap
}

func mustSet(t *testing.T, s store.Store, path string, value any) {
	t.Helper()
	if err := s.Set(context.Background(), path, value); err != nil {
		t.Fatalf("set %q: %v", path, err)
	}
}

type record struct {
	Name       string          `json:"name"`
	Month      int             `json:"month"`
	Active     bool            `json:"active"`
	SharedWith map[string]bool `json:"sharedWith,omitempty"`
}

func testSetGet(t *testing.T, s store.Store) {
	mustSet(t, s, "budgets/b1", record{Name: "Enero", Month: 0, Active: true, SharedWith: map[string]bool{"u2": true}})

	var got record
	if err := mustGet(t, s, "budgets/b1").Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Enero" || got.Month != 0 || !got.Active || !got.SharedWith["u2"] {
		t.Errorf("unexpected record: %+v", got)
	}

	leaf := mustGet(t, s, "budgets/b1/sharedWith/u2")
	if leaf.Value != true {
		t.Errorf("expected leaf true, got %v", leaf.Value)
	}
	if leaf.Key() != "u2" {
		t.Errorf("expected key u2, got %q", leaf.Key())
	}

	if mustGet(t, s, "budgets/missing").Exists() {
		t.Error("missing path should not exist")
	}

	// Overwriting a scalar with a map and back.
	mustSet(t, s, "a", "scalar")
	mustSet(t, s, "a/b", 1)
	if v := mustGet(t, s, "a/b").Value; v != float64(1) {
		t.Errorf("expected 1, got %v", v)
	}
	mustSet(t, s, "a", "again")
	if v := mustGet(t, s, "a").Value; v != "again" {
		t.Errorf("expected scalar, got %v", v)
	}
}

func testSetNil(t *testing.T, s store.Store) {
	mustSet(t, s, "userBudgets/u1/b1", true)
	mustSet(t, s, "userBudgets/u1/b1", nil)
	if mustGet(t, s, "userBudgets/u1").Exists() {
		t.Error("emptied parent should not exist")
	}
}

func testUpdate(t *testing.T, s store.Store) {
	mustSet(t, s, "budgets/b1", map[string]any{"name": "x", "ownerId": "u1"})
	err := s.Update(context.Background(), map[string]any{
		"budgets/b1/sharedWith/u2": true,
		"userBudgets/u2/b1":        true,
		"budgets/b1/name":          "y",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	b := mustGet(t, s, "budgets/b1")
	if b.Child("name").Value != "y" || b.Child("ownerId").Value != "u1" || b.Child("sharedWith/u2").Value != true {
		t.Errorf("unexpected budget after update: %v", b.Value)
	}
	if mustGet(t, s, "userBudgets/u2/b1").Value != true {
		t.Error("index pointer missing after update")
	}
}

func testRemove(t *testing.T, s store.Store) {
	mustSet(t, s, "transactions/b1/t1", map[string]any{"amount": 10})
	mustSet(t, s, "transactions/b1/t2", map[string]any{"amount": 20})
	mustSet(t, s, "transactions/b10/t3", map[string]any{"amount": 30})

	if err := s.Remove(context.Background(), "transactions/b1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mustGet(t, s, "transactions/b1").Exists() {
		t.Error("subtree should be gone")
	}
	if !mustGet(t, s, "transactions/b10/t3").Exists() {
		t.Error("sibling with shared prefix must survive")
	}
	if err := s.Remove(context.Background(), "transactions/nothing"); err != nil {
		t.Errorf("removing a missing path should succeed: %v", err)
	}
}

func testPush(t *testing.T, s store.Store) {
	keys := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		k, err := s.Push(context.Background(), "budgets")
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		if !store.ValidKey(k) {
			t.Fatalf("push returned invalid key %q", k)
		}
		keys = append(keys, k)
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("push keys should sort in creation order: %v", keys)
	}
}

func testQuery(t *testing.T, s store.Store) {
	mustSet(t, s, "budgets/b1", map[string]any{"ownerId": "u1", "sharedWith": map[string]any{"u3": true}})
	mustSet(t, s, "budgets/b2", map[string]any{"ownerId": "u2", "sharedWith": map[string]any{"u1": true}})
	mustSet(t, s, "budgets/b3", map[string]any{"ownerId": "u1"})

	owned, err := s.Query(context.Background(), "budgets", "ownerId", "u1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := owned.Keys(); !reflect.DeepEqual(got, []string{"b1", "b3"}) {
		t.Errorf("expected b1,b3 got %v", got)
	}

	shared, err := s.Query(context.Background(), "budgets", "sharedWith/u1", true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := shared.Keys(); !reflect.DeepEqual(got, []string{"b2"}) {
		t.Errorf("expected b2 got %v", got)
	}

	none, err := s.Query(context.Background(), "budgets", "ownerId", "nobody")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if none.Exists() {
		t.Errorf("expected no match, got %v", none.Value)
	}
}

func testLists(t *testing.T, s store.Store) {
	items := []map[string]any{
		{"name": "Pan", "price": 1.5, "quantity": 2},
		{"name": "Leche", "price": 1.25, "quantity": 1},
	}
	mustSet(t, s, "transactions/b1/t1", map[string]any{"foodItems": items})
	got := mustGet(t, s, "transactions/b1/t1/foodItems")
	list, ok := got.Value.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected list of 2, got %#v", got.Value)
	}
	if list[1].(map[string]any)["name"] != "Leche" {
		t.Errorf("list order not preserved: %v", list)
	}
}

func testInvalid(t *testing.T, s store.Store) {
	for _, p := range []string{"budgets/a.b", "budgets/$x", "budgets/[0]", "budgets//#"} {
		if err := s.Set(context.Background(), p, true); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

func next(t *testing.T, sub *store.Subscription) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return store.Snapshot{}
}

func testSubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, "userBudgets/u1/b1", true)

	sub, err := s.Subscribe(ctx, "userBudgets/u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if got := next(t, sub).Keys(); !reflect.DeepEqual(got, []string{"b1"}) {
		t.Errorf("initial snapshot: expected [b1], got %v", got)
	}

	mustSet(t, s, "userBudgets/u1/b2", true)
	mustSet(t, s, "userBudgets/u2/b9", true) // unrelated
	mustSet(t, s, "userBudgets/u1/b1", nil)

	if got := next(t, sub).Keys(); !reflect.DeepEqual(got, []string{"b1", "b2"}) {
		t.Errorf("second snapshot: expected [b1 b2], got %v", got)
	}
	if got := next(t, sub).Keys(); !reflect.DeepEqual(got, []string{"b2"}) {
		t.Errorf("third snapshot: expected [b2], got %v", got)
	}

	// Ancestor writes are delivered too.
	if err := s.Remove(ctx, "userBudgets"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if next(t, sub).Exists() {
		t.Error("expected empty snapshot after ancestor removal")
	}

	sub.Cancel()
	sub.Cancel()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
