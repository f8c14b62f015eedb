package services

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

// dashboardService aggregates budget totals for the dashboard.
type dashboardService struct {
	budgets      BudgetServicer
	transactions TransactionServicer
}

// NewDashboardService creates a new DashboardServicer.
func NewDashboardService(budgets BudgetServicer, transactions TransactionServicer) DashboardServicer {
	return &dashboardService{budgets: budgets, transactions: transactions}
}

// Summary totals the transactions of every budget visible to userID. When
// month or year is set only matching budgets are included.
func (s *dashboardService) Summary(ctx context.Context, userID string, month, year *int) (*DashboardSummary, error) {
	budgets, err := s.budgets.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	filtered := budgets[:0:0]
	for _, b := range budgets {
		if month != nil && b.Month != *month {
			continue
		}
		if year != nil && b.Year != *year {
			continue
		}
		filtered = append(filtered, b)
	}

	summaries := make([]BudgetSummary, len(filtered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, b := range filtered {
		g.Go(func() error {
			txs, err := s.transactions.List(gctx, userID, b.ID)
			if err != nil {
				return err
			}
			summaries[i] = summarize(b, txs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &DashboardSummary{
		Budgets:  summaries,
		Income:   decimal.Zero,
		Expenses: decimal.Zero,
		Balance:  decimal.Zero,
	}
	for _, bs := range summaries {
		out.Income = out.Income.Add(bs.Income)
		out.Expenses = out.Expenses.Add(bs.Expenses)
	}
	out.Balance = out.Income.Sub(out.Expenses)
	return out, nil
}

func summarize(b models.Budget, txs []models.Transaction) BudgetSummary {
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		amount := decimal.NewFromFloat(tx.Amount)
		switch tx.Type {
		case models.TransactionTypeIncome:
			income = income.Add(amount)
		case models.TransactionTypeExpense:
			expenses = expenses.Add(amount)
		}
	}
	return BudgetSummary{
		Budget:   b,
		Income:   income,
		Expenses: expenses,
		Balance:  income.Sub(expenses),
		Count:    len(txs),
	}
}
