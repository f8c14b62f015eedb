package services

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/uuid"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

// DeleteWindow is how long after creation a transaction can still be deleted.
const DeleteWindow = 30 * 24 * time.Hour

// transactionService handles transaction-related business logic.
type transactionService struct {
	store    store.Store
	activity ActivityServicer
	now      func() time.Time
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(st store.Store, activity ActivityServicer) TransactionServicer {
	return &transactionService{store: st, activity: activity, now: time.Now}
}

func decodeTransaction(budgetID string, snap store.Snapshot) (*models.Transaction, error) {
	var tx models.Transaction
	if err := snap.Decode(&tx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	tx.ID = snap.Key()
	tx.BudgetID = budgetID
	return &tx, nil
}

func decodeTransactions(budgetID string, snap store.Snapshot) []models.Transaction {
	out := make([]models.Transaction, 0, len(snap.Keys()))
	for _, c := range snap.Children() {
		tx, err := decodeTransaction(budgetID, c)
		if err != nil {
			logger.Named("transactions").Warnw("skipping unreadable transaction", "path", c.Path, "error", err)
			continue
		}
		out = append(out, *tx)
	}
	return out
}

func (s *transactionService) load(ctx context.Context, budgetID, transactionID string) (*models.Transaction, error) {
	if !validID(budgetID) || !validID(transactionID) {
		return nil, apperrors.ErrTransactionNotFound
	}
	snap, err := s.store.Get(ctx, transactionPath(budgetID, transactionID))
	if err != nil {
		return nil, storeError(err)
	}
	if !snap.Exists() {
		return nil, apperrors.ErrTransactionNotFound
	}
	return decodeTransaction(budgetID, snap)
}

// applyDerivedAmount sets the amount of a grocery transaction with items to
// the total of its unpaid items.
func applyDerivedAmount(in *models.TransactionInput) {
	if !in.IsGrocery() {
		return
	}
	total, _ := models.UnpaidTotal(foodItems(in.FoodItems)).Float64()
	in.Amount = &total
}

// foodItems converts submitted items, assigning ids to new ones. Missing
// numbers become zero.
func foodItems(in []models.FoodItemInput) []models.FoodItem {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.FoodItem, 0, len(in))
	for _, it := range in {
		item := models.FoodItem{ID: it.ID, Name: it.Name, IsPaid: it.IsPaid}
		if it.Quantity != nil {
			item.Quantity = *it.Quantity
		}
		if it.Price != nil {
			item.Price = *it.Price
		}
		out = append(out, item)
	}
	return out
}

func withItemIDs(items []models.FoodItem) []models.FoodItem {
	for i := range items {
		if items[i].ID == "" || !validID(items[i].ID) {
			items[i].ID = uuid.New()
		}
	}
	return items
}

func inputFromTransaction(tx *models.Transaction) models.TransactionInput {
	amount := tx.Amount
	in := models.TransactionInput{
		Type:        string(tx.Type),
		Name:        tx.Name,
		Category:    tx.Category,
		Amount:      &amount,
		Date:        tx.Date,
		Description: tx.Description,
	}
	for _, it := range tx.FoodItems {
		q, p := it.Quantity, it.Price
		in.FoodItems = append(in.FoodItems, models.FoodItemInput{
			ID: it.ID, Name: it.Name, Quantity: &q, Price: &p, IsPaid: it.IsPaid,
		})
	}
	return in
}

func applyPatch(in models.TransactionInput, patch models.TransactionPatch) models.TransactionInput {
	if patch.Type != nil {
		in.Type = *patch.Type
	}
	if patch.Name != nil {
		in.Name = *patch.Name
	}
	if patch.Category != nil {
		in.Category = *patch.Category
	}
	if patch.Amount != nil {
		in.Amount = patch.Amount
	}
	if patch.Date != nil {
		in.Date = *patch.Date
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.FoodItems != nil {
		in.FoodItems = *patch.FoodItems
	}
	return in
}

// Create stores a new transaction on a budget visible to in.UserID.
func (s *transactionService) Create(ctx context.Context, budgetID string, in models.TransactionInput) (string, error) {
	b, err := loadBudget(ctx, s.store, budgetID)
	if err != nil {
		return "", err
	}
	if !b.VisibleTo(in.UserID) {
		return "", apperrors.ErrForbidden
	}

	applyDerivedAmount(&in)
	if res := validator.ValidateTransaction(in); !res.IsValid {
		return "", apperrors.WithFields(apperrors.ErrValidationFailed, res.Errors)
	}
	in = validator.Sanitize(in)

	id, err := s.store.Push(ctx, transactionsPath(budgetID))
	if err != nil {
		return "", storeError(err)
	}

	tx := models.Transaction{
		Base:        models.Base{ID: id, CreatedAt: s.now().UTC()},
		BudgetID:    budgetID,
		Type:        models.TransactionType(in.Type),
		Name:        in.Name,
		Category:    in.Category,
		Amount:      *in.Amount,
		Date:        in.Date,
		Description: in.Description,
		FoodItems:   withItemIDs(foodItems(in.FoodItems)),
		CreatedBy:   in.UserID,
	}
	if err := s.store.Set(ctx, transactionPath(budgetID, id), tx); err != nil {
		return "", storeError(err)
	}

	s.activity.Log(ctx, in.UserID, models.ActionCreateTransaction, map[string]any{
		"transactionId": id,
		"budgetId":      budgetID,
		"type":          in.Type,
		"amount":        tx.Amount,
	})
	return id, nil
}

// List returns every transaction of a budget in no particular order. A
// deleted budget lists as empty.
func (s *transactionService) List(ctx context.Context, userID, budgetID string) ([]models.Transaction, error) {
	if err := readableBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, transactionsPath(budgetID))
	if err != nil {
		return nil, storeError(err)
	}
	return decodeTransactions(budgetID, snap), nil
}

// Get returns one transaction of a budget visible to userID.
func (s *transactionService) Get(ctx context.Context, userID, budgetID, transactionID string) (*models.Transaction, error) {
	if _, err := visibleBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}
	return s.load(ctx, budgetID, transactionID)
}

// Update merges patch into a transaction. Patched fields and the resulting
// amount are validated; for grocery transactions with items the amount is
// derived again.
func (s *transactionService) Update(
	ctx context.Context,
	userID, budgetID, transactionID string,
	patch models.TransactionPatch,
) (*models.Transaction, error) {
	if _, err := visibleBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, budgetID, transactionID)
	if err != nil {
		return nil, err
	}

	merged := applyPatch(inputFromTransaction(existing), patch)
	applyDerivedAmount(&merged)
	if res := validator.ValidateTransactionUpdate(merged, patch); !res.IsValid {
		return nil, apperrors.WithFields(apperrors.ErrValidationFailed, res.Errors)
	}

	clean := applyPatch(inputFromTransaction(existing), validator.Sanitize(patch))
	applyDerivedAmount(&clean)

	base := transactionPath(budgetID, transactionID)
	values := map[string]any{
		store.Join(base, "type"):        clean.Type,
		store.Join(base, "name"):        clean.Name,
		store.Join(base, "category"):    clean.Category,
		store.Join(base, "amount"):      *clean.Amount,
		store.Join(base, "date"):        clean.Date,
		store.Join(base, "description"): clean.Description,
		store.Join(base, "updatedAt"):   timestamp(s.now()),
	}
	if items := withItemIDs(foodItems(clean.FoodItems)); len(items) > 0 {
		values[store.Join(base, "foodItems")] = items
	} else {
		values[store.Join(base, "foodItems")] = nil
	}

	if err := s.store.Update(ctx, values); err != nil {
		return nil, storeError(err)
	}

	s.activity.Log(ctx, userID, models.ActionUpdateTransaction, map[string]any{
		"transactionId": transactionID,
		"budgetId":      budgetID,
		"amount":        *clean.Amount,
	})
	return s.load(ctx, budgetID, transactionID)
}

// Delete removes a transaction. Only its creator may delete it, and only
// within DeleteWindow of its creation.
func (s *transactionService) Delete(ctx context.Context, budgetID, transactionID, userID string) error {
	tx, err := s.load(ctx, budgetID, transactionID)
	if err != nil {
		return err
	}
	if tx.CreatedBy != userID {
		return apperrors.ErrForbidden
	}
	if s.now().Sub(tx.CreatedAt) > DeleteWindow {
		return apperrors.ErrTransactionTooOld
	}

	if err := s.store.Remove(ctx, transactionPath(budgetID, transactionID)); err != nil {
		return storeError(err)
	}

	s.activity.Log(ctx, userID, models.ActionDeleteTransaction, map[string]any{
		"transactionId": transactionID,
		"budgetId":      budgetID,
	})
	return nil
}

// ListByCategory returns the transactions of a budget in one category.
func (s *transactionService) ListByCategory(ctx context.Context, userID, budgetID, category string) ([]models.Transaction, error) {
	if err := readableBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}
	// Categories are stored escaped.
	snap, err := s.store.Query(ctx, transactionsPath(budgetID), "category", validator.SanitizeString(category))
	if err != nil {
		return nil, storeError(err)
	}
	return decodeTransactions(budgetID, snap), nil
}

// Subscribe streams the transaction list of a budget visible to userID.
func (s *transactionService) Subscribe(ctx context.Context, userID, budgetID string) (*TransactionSubscription, error) {
	if err := readableBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}
	src, err := s.store.Subscribe(ctx, transactionsPath(budgetID))
	if err != nil {
		return nil, storeError(err)
	}
	return newSubscription(ctx, src, func(_ context.Context, snap store.Snapshot) []models.Transaction {
		return decodeTransactions(budgetID, snap)
	}), nil
}

// SortTransactions orders transactions by date, then creation time, newest first.
func SortTransactions(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date > txs[j].Date
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
