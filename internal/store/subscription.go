package store

import (
	"sync"
)

// Subscription is a stream of snapshots for one path. Snapshots are queued
// without bound so a slow reader never blocks writers, and they are
// delivered in the order the backend committed the writes.
type Subscription struct {
	path     string
	events   chan Snapshot
	signal   chan struct{}
	done     chan struct{}
	once     sync.Once
	onCancel func()

	mu    sync.Mutex
	queue []Snapshot
}

func newSubscription(path string, onCancel func()) *Subscription {
	s := &Subscription{
		path:     path,
		events:   make(chan Snapshot),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	go s.pump()
	return s
}

// Path returns the subscribed path.
func (s *Subscription) Path() string { return s.path }

// Events returns the snapshot channel. It is closed after Cancel.
func (s *Subscription) Events() <-chan Snapshot { return s.events }

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops delivery and releases the registration. Only the first call
// has an effect.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *Subscription) enqueue(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.events <- next:
			case <-s.done:
				return
			}
		}
	}
}

// Hub tracks the open subscriptions of one backend.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Add registers a subscription for path and queues initial as its first snapshot.
func (h *Hub) Add(path string, initial Snapshot) *Subscription {
	var sub *Subscription
	sub = newSubscription(path, func() { h.remove(sub) })
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	sub.enqueue(initial)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Notify queues a fresh snapshot, produced by read, for every subscription
// whose path overlaps one of the changed paths. Backends call it after each
// committed write while still holding their write lock.
func (h *Hub) Notify(changed []string, read func(path string) Snapshot) {
	h.mu.Lock()
	var affected []*Subscription
	for sub := range h.subs {
		for _, c := range changed {
			if Overlaps(sub.path, c) {
				affected = append(affected, sub)
				break
			}
		}
	}
	h.mu.Unlock()

	for _, sub := range affected {
		sub.enqueue(read(sub.path))
	}
}

// Close cancels every open subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}
