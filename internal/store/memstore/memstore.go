// Package memstore is an in-process store.Store. It backs the "memory" store
// driver and every service test.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/uuid"
)

// Op names an operation for fault injection.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpQuery  Op = "query"
)

// FaultFunc decides whether an operation on path should be rejected.
// Returning a non-nil error makes the operation fail without side effects.
type FaultFunc func(op Op, path string) error

// Store keeps the whole tree in memory behind a single mutex.
type Store struct {
	mu     sync.Mutex
	tree   store.Tree
	hub    *store.Hub
	fault  FaultFunc
	closed bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{hub: store.NewHub()}
}

var _ store.Store = (*Store)(nil)

// SetFault installs (or clears, with nil) a fault injection hook.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.Len()
}

func (s *Store) check(op Op, path string) error {
	if s.closed {
		return store.ErrClosed
	}
	if s.fault != nil {
		return s.fault(op, path)
	}
	return nil
}

func (s *Store) snapshot(path string) store.Snapshot {
	parts, _ := store.Split(path)
	return store.Snapshot{Path: store.Join(parts...), Value: store.Export(s.tree.Get(parts))}
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, path string) (store.Snapshot, error) {
	parts, err := store.Split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpGet, path); err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: store.Join(parts...), Value: store.Export(s.tree.Get(parts))}, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	return s.write(OpSet, map[string]any{path: value})
}

// Update implements store.Store.
func (s *Store) Update(_ context.Context, values map[string]any) error {
	return s.write(OpUpdate, values)
}

// Remove implements store.Store.
func (s *Store) Remove(_ context.Context, path string) error {
	return s.write(OpRemove, map[string]any{path: nil})
}

func (s *Store) write(op Op, values map[string]any) error {
	type change struct {
		parts []string
		value any
	}
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	changes := make([]change, 0, len(paths))
	for _, p := range paths {
		parts, err := store.Split(p)
		if err != nil {
			return err
		}
		v, err := store.Normalize(values[p])
		if err != nil {
			return err
		}
		changes = append(changes, change{parts: parts, value: v})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if err := s.check(op, p); err != nil {
			return err
		}
	}
	changed := make([]string, 0, len(changes))
	for _, c := range changes {
		if err := s.tree.Set(c.parts, c.value); err != nil {
			return err
		}
		changed = append(changed, store.Join(c.parts...))
	}
	s.hub.Notify(changed, s.snapshot)
	return nil
}

// Push implements store.Store.
func (s *Store) Push(_ context.Context, path string) (string, error) {
	if _, err := store.Split(path); err != nil {
		return "", err
	}
	return uuid.New(), nil
}

// Query implements store.Store.
func (s *Store) Query(_ context.Context, path, child string, equal any) (store.Snapshot, error) {
	parts, err := store.Split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpQuery, path); err != nil {
		return store.Snapshot{}, err
	}
	matched, err := store.FilterChildren(s.tree.Get(parts), child, equal)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap := store.Snapshot{Path: store.Join(parts...)}
	if matched != nil {
		snap.Value = store.Export(matched)
	}
	return snap, nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(_ context.Context, path string) (*store.Subscription, error) {
	parts, err := store.Split(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpGet, path); err != nil {
		return nil, err
	}
	p := store.Join(parts...)
	return s.hub.Add(p, s.snapshot(p)), nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
