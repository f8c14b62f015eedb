// Package events fans audit log entries out to other systems.
package events

import (
	"context"
	"sync"
)

// Publisher delivers activity messages. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishActivity(ctx context.Context, msg *ActivityMessage) error
	Close() error
}

// NopPublisher drops every message. It is used when no broker is configured.
type NopPublisher struct{}

// PublishActivity implements Publisher.
func (NopPublisher) PublishActivity(context.Context, *ActivityMessage) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []ActivityMessage
	Err      error
}

// PublishActivity implements Publisher. When Err is set it is returned and
// nothing is recorded.
func (r *Recorder) PublishActivity(_ context.Context, msg *ActivityMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, *msg)
	return nil
}

// Messages returns a copy of the recorded messages in publish order.
func (r *Recorder) Messages() []ActivityMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActivityMessage(nil), r.messages...)
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }
