package models

import "github.com/shopspring/decimal"

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// GroceryCategory is the category whose amount is derived from its food items.
const GroceryCategory = "Alimentación"

// FoodItem is one line of a grocery transaction.
type FoodItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	IsPaid   bool    `json:"isPaid"`
}

// Transaction represents an income or expense entry of a budget.
type Transaction struct {
	Base
	BudgetID    string          `json:"budgetId"`
	Type        TransactionType `json:"type"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Amount      float64         `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
	FoodItems   []FoodItem      `json:"foodItems,omitempty"`
	CreatedBy   string          `json:"createdBy"`
}

// UnpaidTotal sums quantity × price over the items that are not paid yet.
func UnpaidTotal(items []FoodItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.IsPaid {
			continue
		}
		total = total.Add(decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.Price)))
	}
	return total
}

// FoodItemInput is a food item as submitted by a client. Quantity and Price
// are pointers so that missing numbers can be reported.
type FoodItemInput struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Price    *float64 `json:"price"`
	IsPaid   bool     `json:"isPaid"`
}

// TransactionInput is the payload for creating a transaction. UserID is the
// acting user and is never read from the request body.
type TransactionInput struct {
	UserID      string          `json:"-"`
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Amount      *float64        `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
	FoodItems   []FoodItemInput `json:"foodItems,omitempty"`
}

// IsGrocery reports whether the amount is derived from the food items.
func (in *TransactionInput) IsGrocery() bool {
	return in.Category == GroceryCategory && len(in.FoodItems) > 0
}

// TransactionPatch is a partial transaction update. Nil fields are left
// unchanged; identity and authorship fields cannot be patched.
type TransactionPatch struct {
	Type        *string          `json:"type,omitempty"`
	Name        *string          `json:"name,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Amount      *float64         `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	FoodItems   *[]FoodItemInput `json:"foodItems,omitempty"`
}
