package models

import "time"

// Activity actions recorded in the audit log.
const (
	ActionCreateBudget      = "createbudget"
	ActionShareBudget       = "sharebudget"
	ActionDeleteBudget      = "deletebudget"
	ActionCreateTransaction = "createtransaction"
	ActionUpdateTransaction = "updatetransaction"
	ActionDeleteTransaction = "deletetransaction"
	ActionChangeRole        = "changerole"
)

// ActivityEntry records a user operation at userActivity/{userId}/{id}.
// Details holds the action specific context, flattened next to the action
// when stored.
type ActivityEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
