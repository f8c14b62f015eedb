// Package store defines the hierarchical key-tree document store the
// services persist to. Values are JSON-shaped trees addressed by
// slash-delimited paths such as "budgets/{id}/sharedWith/{uid}".
//
// Backends live in subpackages: memstore keeps the tree in process and
// sqlstore keeps one row per leaf in a SQL table through GORM.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidPath is returned for empty keys or keys containing reserved characters.
	ErrInvalidPath = errors.New("store: invalid path")
	// ErrPermissionDenied is returned when a backend rejects an operation on a path.
	ErrPermissionDenied = errors.New("store: permission denied")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// Store is the set of primitives the services rely on.
type Store interface {
	// Get reads the subtree at path. A missing path yields a snapshot whose
	// Exists method reports false.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set replaces the subtree at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error

	// Update applies every path/value pair atomically: either all writes
	// land or none do. Nil values remove their path.
	Update(ctx context.Context, values map[string]any) error

	// Remove deletes the subtree at path. Removing a missing path is not an error.
	Remove(ctx context.Context, path string) error

	// Push reserves a new unique child key under path. Keys handed out by
	// one store sort in creation order. Nothing is written.
	Push(ctx context.Context, path string) (string, error)

	// Query returns the children of path whose value at the relative child
	// path equals equal.
	Query(ctx context.Context, path, child string, equal any) (Snapshot, error)

	// Subscribe streams the subtree at path: the current value first, then
	// one snapshot per committed write touching path.
	Subscribe(ctx context.Context, path string) (*Subscription, error)

	// Close releases backend resources and cancels open subscriptions.
	Close() error
}

const reservedKeyChars = ".#$[]/"

// ValidKey reports whether key can be used as a single path segment.
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, reservedKeyChars)
}

// Split validates path and returns its segments. The empty path is the root.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if !ValidKey(p) {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

// Join builds a path from segments.
func Join(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, "/")
}

// Overlaps reports whether a write to one path can change the value seen at the other.
func Overlaps(a, b string) bool {
	a, b = strings.Trim(a, "/"), strings.Trim(b, "/")
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
