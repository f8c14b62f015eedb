package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/validator"
)

// fetchConcurrency bounds parallel budget reads.
const fetchConcurrency = 8

// budgetService handles budget-related business logic. Every budget visible
// to a user has a pointer at userBudgets/{uid}/{budgetId}; the pointers are
// written next to the budget without a transaction, so readers tolerate
// missing ones.
type budgetService struct {
	store    store.Store
	users    UserServicer
	activity ActivityServicer
	now      func() time.Time
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(st store.Store, users UserServicer, activity ActivityServicer) BudgetServicer {
	return &budgetService{store: st, users: users, activity: activity, now: time.Now}
}

func decodeBudget(snap store.Snapshot) (*models.Budget, error) {
	var b models.Budget
	if err := snap.Decode(&b); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	b.ID = snap.Key()
	return &b, nil
}

// loadBudget reads a budget without any authorization check.
func loadBudget(ctx context.Context, st store.Store, budgetID string) (*models.Budget, error) {
	if !validID(budgetID) {
		return nil, apperrors.ErrBudgetNotFound
	}
	snap, err := st.Get(ctx, budgetPath(budgetID))
	if err != nil {
		return nil, storeError(err)
	}
	if !snap.Exists() {
		return nil, apperrors.ErrBudgetNotFound
	}
	return decodeBudget(snap)
}

// visibleBudget loads a budget and checks that userID can see it.
func visibleBudget(ctx context.Context, st store.Store, userID, budgetID string) (*models.Budget, error) {
	b, err := loadBudget(ctx, st, budgetID)
	if err != nil {
		return nil, err
	}
	if !b.VisibleTo(userID) {
		return nil, apperrors.ErrForbidden
	}
	return b, nil
}

// readableBudget authorizes reads of a budget's transactions. A budget that
// no longer exists has no transactions, so it reads as empty rather than
// failing; an existing budget must be visible to userID.
func readableBudget(ctx context.Context, st store.Store, userID, budgetID string) error {
	_, err := visibleBudget(ctx, st, userID, budgetID)
	if errors.Is(err, apperrors.ErrBudgetNotFound) && validID(budgetID) {
		return nil
	}
	return err
}

// Create validates and stores a new budget, then writes the index pointers of
// the owner and of every user it is shared with. Month and year default to the
// current ones.
func (s *budgetService) Create(ctx context.Context, userID string, in models.BudgetInput) (string, error) {
	if !validID(userID) {
		return "", apperrors.ErrUnauthorized
	}

	now := s.now().UTC()
	if in.Month == nil {
		month := int(now.Month()) - 1
		in.Month = &month
	}
	if in.Year == nil {
		year := now.Year()
		in.Year = &year
	}

	if res := validator.ValidateBudget(in); !res.IsValid {
		return "", apperrors.WithFields(apperrors.ErrValidationFailed, res.Errors)
	}
	in = validator.Sanitize(in)

	id, err := s.store.Push(ctx, budgetsRoot)
	if err != nil {
		return "", storeError(err)
	}

	isMonthly := true
	if in.IsMonthly != nil {
		isMonthly = *in.IsMonthly
	}

	shared := make(map[string]bool, len(in.SharedWith))
	for uid, ok := range in.SharedWith {
		if ok && validID(uid) && uid != userID {
			shared[uid] = true
		}
	}

	budget := models.Budget{
		Base:        models.Base{ID: id, CreatedAt: now},
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     userID,
		Month:       *in.Month,
		Year:        *in.Year,
		IsMonthly:   isMonthly,
		SharedWith:  shared,
	}

	if err := s.store.Set(ctx, budgetPath(id), budget); err != nil {
		return "", storeError(err)
	}
	if err := s.store.Set(ctx, indexPath(userID, id), true); err != nil {
		return "", storeError(err)
	}

	for _, uid := range budget.Members()[1:] {
		if err := s.store.Set(ctx, indexPath(uid, id), true); err != nil {
			logger.Named("budgets").Warnw("failed to write shared index pointer",
				"error", err,
				"budget_id", id,
				"user_id", uid,
			)
		}
	}

	s.activity.Log(ctx, userID, models.ActionCreateBudget, map[string]any{
		"budgetId": id,
		"name":     budget.Name,
	})
	return id, nil
}

// Get returns a budget visible to userID.
func (s *budgetService) Get(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	return visibleBudget(ctx, s.store, userID, budgetID)
}

// fetchBudgets reads the given budgets concurrently. Missing or unreadable
// budgets are left out.
func (s *budgetService) fetchBudgets(ctx context.Context, ids []string) []models.Budget {
	results := make([]*models.Budget, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			b, err := loadBudget(gctx, s.store, id)
			if err != nil {
				if !errors.Is(err, apperrors.ErrBudgetNotFound) {
					logger.Named("budgets").Warnw("failed to read indexed budget", "error", err, "budget_id", id)
				}
				return nil
			}
			results[i] = b
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Budget, 0, len(ids))
	for _, b := range results {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out
}

func (s *budgetService) listFromIndex(ctx context.Context, userID string) ([]models.Budget, error) {
	snap, err := s.store.Get(ctx, userBudgetsPath(userID))
	if err != nil {
		return nil, err
	}
	return s.fetchBudgets(ctx, snap.Keys()), nil
}

func (s *budgetService) queryBudgets(ctx context.Context, child string, equal any) ([]models.Budget, error) {
	snap, err := s.store.Query(ctx, budgetsRoot, child, equal)
	if err != nil {
		return nil, err
	}
	out := make([]models.Budget, 0, len(snap.Keys()))
	for _, c := range snap.Children() {
		b, err := decodeBudget(c)
		if err != nil {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *budgetService) listOwned(ctx context.Context, userID string) ([]models.Budget, error) {
	return s.queryBudgets(ctx, "ownerId", userID)
}

func (s *budgetService) listShared(ctx context.Context, userID string) ([]models.Budget, error) {
	return s.queryBudgets(ctx, store.Join("sharedWith", userID), true)
}

// ListForUser returns every budget the user owns or has shared, resolved via
// the index, an owner query and a shared-with query. A failing source is
// skipped; the call fails only when all three do.
func (s *budgetService) ListForUser(ctx context.Context, userID string) ([]models.Budget, error) {
	if !validID(userID) {
		return []models.Budget{}, nil
	}

	sources := []struct {
		name string
		list func(context.Context, string) ([]models.Budget, error)
	}{
		{"index", s.listFromIndex},
		{"owner", s.listOwned},
		{"shared", s.listShared},
	}

	var (
		mu      sync.Mutex
		found   = make(map[string]models.Budget)
		lastErr error
		failed  int
	)

	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			budgets, err := src.list(ctx, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				lastErr = err
				logger.Named("budgets").Warnw("budget source failed",
					"source", src.name,
					"user_id", userID,
					"error", err,
				)
				return nil
			}
			for _, b := range budgets {
				if b.VisibleTo(userID) {
					found[b.ID] = b
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(sources) {
		return nil, storeError(lastErr)
	}

	out := make([]models.Budget, 0, len(found))
	for _, b := range found {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListForUserByMonth returns the budgets of ListForUser for one month.
func (s *budgetService) ListForUserByMonth(ctx context.Context, userID string, month, year int) ([]models.Budget, error) {
	all, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Budget, 0, len(all))
	for _, b := range all {
		if b.Month == month && b.Year == year {
			out = append(out, b)
		}
	}
	return out, nil
}

// SubscribeForUser streams the user's budget list, re-resolved on every
// change of the user's index. The first time the index is empty the owned
// budgets are emitted instead; later empty indexes emit an empty list.
func (s *budgetService) SubscribeForUser(ctx context.Context, userID string) (*BudgetSubscription, error) {
	if !validID(userID) {
		return nil, apperrors.ErrUnauthorized
	}
	src, err := s.store.Subscribe(ctx, userBudgetsPath(userID))
	if err != nil {
		return nil, storeError(err)
	}

	// resolve runs on the subscription goroutine only.
	fellBack := false
	return newSubscription(ctx, src, func(ctx context.Context, snap store.Snapshot) []models.Budget {
		ids := snap.Keys()
		if len(ids) > 0 {
			return s.fetchBudgets(ctx, ids)
		}
		if fellBack {
			return []models.Budget{}
		}
		fellBack = true
		owned, err := s.listOwned(ctx, userID)
		if err != nil {
			logger.Named("budgets").Warnw("owner fallback failed", "user_id", userID, "error", err)
			return []models.Budget{}
		}
		return owned
	}), nil
}

// Update merges patch into a budget visible to userID. Ownership, sharing and
// creation fields cannot be changed here.
func (s *budgetService) Update(ctx context.Context, userID, budgetID string, patch models.BudgetPatch) (*models.Budget, error) {
	if _, err := visibleBudget(ctx, s.store, userID, budgetID); err != nil {
		return nil, err
	}

	if res := validator.ValidateBudgetPatch(patch); !res.IsValid {
		return nil, apperrors.WithFields(apperrors.ErrValidationFailed, res.Errors)
	}

	patch = validator.Sanitize(patch)
	base := budgetPath(budgetID)
	values := map[string]any{
		store.Join(base, "updatedAt"): timestamp(s.now()),
	}
	if patch.Name != nil {
		values[store.Join(base, "name")] = *patch.Name
	}
	if patch.Description != nil {
		values[store.Join(base, "description")] = *patch.Description
	}
	if patch.Month != nil {
		values[store.Join(base, "month")] = *patch.Month
	}
	if patch.Year != nil {
		values[store.Join(base, "year")] = *patch.Year
	}
	if patch.IsMonthly != nil {
		values[store.Join(base, "isMonthly")] = *patch.IsMonthly
	}

	if err := s.store.Update(ctx, values); err != nil {
		return nil, storeError(err)
	}
	return loadBudget(ctx, s.store, budgetID)
}

// ShareWith grants the user registered under email access to a budget. The
// owner and existing members may share. Sharing twice succeeds and repairs a
// missing index pointer.
func (s *budgetService) ShareWith(ctx context.Context, budgetID, email, currentUserID string) error {
	log := logger.Named("budgets")

	b, err := loadBudget(ctx, s.store, budgetID)
	if err != nil {
		return err
	}
	if !b.VisibleTo(currentUserID) {
		return apperrors.ErrForbidden
	}

	target, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if target.ID == currentUserID {
		return apperrors.ErrSelfShare
	}

	if b.VisibleTo(target.ID) {
		pointer, err := s.store.Get(ctx, indexPath(target.ID, budgetID))
		if err != nil {
			return storeError(err)
		}
		if !pointer.Exists() {
			log.Infow("repairing missing index pointer", "budget_id", budgetID, "user_id", target.ID)
			if err := s.store.Set(ctx, indexPath(target.ID, budgetID), true); err != nil {
				return storeError(err)
			}
		}
		return nil
	}

	memberPath := store.Join(budgetPath(budgetID), "sharedWith", target.ID)
	err = s.store.Update(ctx, map[string]any{
		memberPath:                     true,
		indexPath(target.ID, budgetID): true,
	})
	if err != nil {
		log.Warnw("atomic share rejected, writing paths one by one",
			"error", err,
			"budget_id", budgetID,
			"user_id", target.ID,
		)
		if err := s.store.Set(ctx, memberPath, true); err != nil {
			return apperrors.WithMessage(apperrors.Wrap(apperrors.ErrStore, err),
				"Could not add the user to the budget")
		}
		if err := s.store.Set(ctx, indexPath(target.ID, budgetID), true); err != nil {
			return apperrors.WithMessage(apperrors.Wrap(apperrors.ErrSharePartial, err),
				"The user was added to the budget but its budget list could not be updated")
		}
	}

	s.activity.Log(ctx, currentUserID, models.ActionShareBudget, map[string]any{
		"budgetId":   budgetID,
		"sharedWith": target.ID,
	})
	return nil
}

// Delete removes a budget together with its transactions and every index
// pointer. Steps are not rolled back when a later one fails.
func (s *budgetService) Delete(ctx context.Context, budgetID, userID string) error {
	b, err := loadBudget(ctx, s.store, budgetID)
	if err != nil {
		return err
	}
	if !b.CanDelete(userID) {
		return apperrors.ErrForbidden
	}

	members := b.Members()
	if userID != b.OwnerID {
		members = append(members, userID)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, uid := range members {
		if !validID(uid) {
			continue
		}
		g.Go(func() error {
			return s.store.Remove(gctx, indexPath(uid, budgetID))
		})
	}
	if err := g.Wait(); err != nil {
		return storeError(err)
	}

	if err := s.store.Remove(ctx, transactionsPath(budgetID)); err != nil {
		return storeError(err)
	}
	if err := s.store.Remove(ctx, budgetPath(budgetID)); err != nil {
		return storeError(err)
	}

	s.activity.Log(ctx, userID, models.ActionDeleteBudget, map[string]any{
		"budgetId": budgetID,
		"name":     b.Name,
	})
	return nil
}
