package services

import (
	"context"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

// Subscription turns store snapshots into resolved values. Each store change
// produces one value on Updates, in the order the changes were committed.
// The subscription lives until Cancel is called, whatever happens to the
// context it was created with.
type Subscription[T any] struct {
	src     *store.Subscription
	updates chan T
}

// BudgetSubscription streams the budget list of a user.
type BudgetSubscription = Subscription[[]models.Budget]

// TransactionSubscription streams the transaction list of a budget.
type TransactionSubscription = Subscription[[]models.Transaction]

func newSubscription[T any](
	ctx context.Context,
	src *store.Subscription,
	resolve func(context.Context, store.Snapshot) T,
) *Subscription[T] {
	s := &Subscription[T]{src: src, updates: make(chan T)}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		<-src.Done()
		cancel()
	}()

	go func() {
		defer close(s.updates)
		for snap := range src.Events() {
			v := resolve(ctx, snap)
			select {
			case s.updates <- v:
			case <-src.Done():
				return
			}
		}
	}()
	return s
}

// Updates returns the value channel. It is closed after Cancel.
func (s *Subscription[T]) Updates() <-chan T { return s.updates }

// Done is closed once the subscription has been cancelled.
func (s *Subscription[T]) Done() <-chan struct{} { return s.src.Done() }

// Cancel stops delivery. Only the first call has an effect.
func (s *Subscription[T]) Cancel() { s.src.Cancel() }
