package metrics

import (
	"context"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

// instrumentedStore decorates a store.Store with operation metrics.
type instrumentedStore struct {
	next store.Store
	m    *Metrics
}

// InstrumentStore wraps st so that every operation is counted and timed.
func InstrumentStore(st store.Store, m *Metrics) store.Store {
	return &instrumentedStore{next: st, m: m}
}

func (s *instrumentedStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	start := time.Now()
	snap, err := s.next.Get(ctx, path)
	s.m.observeStore("get", start, err)
	return snap, err
}

func (s *instrumentedStore) Set(ctx context.Context, path string, value any) error {
	start := time.Now()
	err := s.next.Set(ctx, path, value)
	s.m.observeStore("set", start, err)
	return err
}

func (s *instrumentedStore) Update(ctx context.Context, values map[string]any) error {
	start := time.Now()
	err := s.next.Update(ctx, values)
	s.m.observeStore("update", start, err)
	return err
}

func (s *instrumentedStore) Remove(ctx context.Context, path string) error {
	start := time.Now()
	err := s.next.Remove(ctx, path)
	s.m.observeStore("remove", start, err)
	return err
}

func (s *instrumentedStore) Push(ctx context.Context, path string) (string, error) {
	start := time.Now()
	key, err := s.next.Push(ctx, path)
	s.m.observeStore("push", start, err)
	return key, err
}

func (s *instrumentedStore) Query(ctx context.Context, path, child string, equal any) (store.Snapshot, error) {
	start := time.Now()
	snap, err := s.next.Query(ctx, path, child, equal)
	s.m.observeStore("query", start, err)
	return snap, err
}

func (s *instrumentedStore) Subscribe(ctx context.Context, path string) (*store.Subscription, error) {
	start := time.Now()
	sub, err := s.next.Subscribe(ctx, path)
	s.m.observeStore("subscribe", start, err)
	if err != nil {
		return nil, err
	}
	s.m.openStreams.Inc()
	go func() {
		<-sub.Done()
		s.m.openStreams.Dec()
	}()
	return sub, nil
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
