package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsGrocery(t *testing.T) {
	price, qty := 2.0, 1.0
	items := []FoodItemInput{{Name: "Pan", Price: &price, Quantity: &qty}}

	cases := []struct {
		name string
		in   TransactionInput
		want bool
	}{
		{"grocery with items", TransactionInput{Category: GroceryCategory, FoodItems: items}, true},
		{"grocery without items", TransactionInput{Category: GroceryCategory}, false},
		{"other category with items", TransactionInput{Category: "Casa", FoodItems: items}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.IsGrocery(); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestUnpaidTotal(t *testing.T) {
	items := []FoodItem{
		{Name: "Leche", Quantity: 2, Price: 1.25},
		{Name: "Pan", Quantity: 1, Price: 3, IsPaid: true},
		{Name: "Huevos", Quantity: 3, Price: 0.1},
	}
	if got := UnpaidTotal(items); !got.Equal(decimal.RequireFromString("2.8")) {
		t.Errorf("expected 2.8, got %s", got)
	}
	if got := UnpaidTotal(nil); !got.IsZero() {
		t.Errorf("expected zero, got %s", got)
	}
}
