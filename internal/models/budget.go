package models

import "sort"

// Budget represents a monthly budget owned by one user and optionally shared
// with others.
type Budget struct {
	Base
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	OwnerID     string          `json:"ownerId"`
	CreatedBy   string          `json:"createdBy,omitempty"` // legacy records only
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	IsMonthly   bool            `json:"isMonthly"`
	SharedWith  map[string]bool `json:"sharedWith,omitempty"`
}

// VisibleTo reports whether userID owns the budget or has it shared.
func (b *Budget) VisibleTo(userID string) bool {
	return b.OwnerID == userID || b.SharedWith[userID]
}

// CanDelete reports whether userID may delete the budget.
func (b *Budget) CanDelete(userID string) bool {
	return b.OwnerID == userID || (b.CreatedBy != "" && b.CreatedBy == userID)
}

// Members returns the owner followed by every shared user, sorted.
func (b *Budget) Members() []string {
	shared := make([]string, 0, len(b.SharedWith))
	for uid, ok := range b.SharedWith {
		if ok && uid != b.OwnerID {
			shared = append(shared, uid)
		}
	}
	sort.Strings(shared)
	return append([]string{b.OwnerID}, shared...)
}

// BudgetInput is the payload for creating a budget. Month, Year and
// IsMonthly are pointers so that an absent value can be told apart from 0.
type BudgetInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Month       *int            `json:"month,omitempty"`
	Year        *int            `json:"year,omitempty"`
	IsMonthly   *bool           `json:"isMonthly,omitempty"`
	SharedWith  map[string]bool `json:"sharedWith,omitempty"`
}

// BudgetPatch is a partial budget update. Nil fields are left unchanged.
type BudgetPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Month       *int    `json:"month,omitempty"`
	Year        *int    `json:"year,omitempty"`
	IsMonthly   *bool   `json:"isMonthly,omitempty"`
}
