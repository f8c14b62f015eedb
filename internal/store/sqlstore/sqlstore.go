// Package sqlstore implements store.Store on a SQL table through GORM.
// Every leaf of the tree is one row keyed by its full path, so a subtree is
// a prefix range and a multi-path update is one database transaction.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
	"github.com/Larvizub/arvidev-presupuestos/internal/uuid"
)

// Node is one stored leaf.
type Node struct {
	Path      string    `gorm:"primaryKey;size:768"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName pins the table name used by the migrations.
func (Node) TableName() string { return "nodes" }

// AutoMigrate creates the nodes table. Production schemas come from the SQL
// migrations; this is for SQLite test databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Node{})
}

// Store is a GORM-backed store.Store. Writes are serialized in process so
// subscribers see snapshots in commit order.
type Store struct {
	db      *gorm.DB
	hub     *store.Hub
	writeMu sync.Mutex
}

// New wraps db. The nodes table must already exist.
func New(db *gorm.DB) *Store {
	return &Store{db: db, hub: store.NewHub()}
}

var _ store.Store = (*Store)(nil)

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// subtree scopes a query to path and everything below it.
func subtree(path string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if path == "" {
			return db
		}
		return db.Where(`path = ? OR path LIKE ? ESCAPE '\'`, path, escapeLike(path)+"/%")
	}
}

func (s *Store) load(ctx context.Context, db *gorm.DB, path string) (any, error) {
	var nodes []Node
	if err := db.WithContext(ctx).Scopes(subtree(path)).Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: load %q: %w", path, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	leaves := make(map[string]any, len(nodes))
	for _, n := range nodes {
		var v any
		if err := json.Unmarshal([]byte(n.Value), &v); err != nil {
			return nil, fmt.Errorf("sqlstore: decode %q: %w", n.Path, err)
		}
		leaves[n.Path] = v
	}
	return store.Unflatten(path, leaves)
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	parts, err := store.Split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	p := store.Join(parts...)
	v, err := s.load(ctx, s.db, p)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: p, Value: store.Export(v)}, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	return s.write(ctx, map[string]any{path: value})
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, values map[string]any) error {
	return s.write(ctx, values)
}

// Remove implements store.Store.
func (s *Store) Remove(ctx context.Context, path string) error {
	return s.write(ctx, map[string]any{path: nil})
}

type change struct {
	path  string
	parts []string
	value any
}

func (s *Store) write(ctx context.Context, values map[string]any) error {
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
		if len(parts) == 0 {
			return fmt.Errorf("%w: cannot write the root", store.ErrInvalidPath)
		}
		v, err := store.Normalize(values[p])
		if err != nil {
			return err
		}
		changes = append(changes, change{path: store.Join(parts...), parts: parts, value: v})
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			if err := applyChange(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	changed := make([]string, 0, len(changes))
	for _, c := range changes {
		changed = append(changed, c.path)
	}
	s.hub.Notify(changed, func(path string) store.Snapshot {
		v, err := s.load(context.Background(), s.db, path)
		if err != nil {
			logger.Named("sqlstore").Errorw("failed to read snapshot for subscribers", "path", path, "error", err)
		}
		return store.Snapshot{Path: path, Value: store.Export(v)}
	})
	return nil
}

func applyChange(tx *gorm.DB, c change) error {
	if err := tx.Scopes(subtree(c.path)).Delete(&Node{}).Error; err != nil {
		return fmt.Errorf("sqlstore: clear %q: %w", c.path, err)
	}
	if c.value == nil {
		return nil
	}

	// A scalar stored at an ancestor is replaced by the new map.
	ancestors := make([]string, 0, len(c.parts)-1)
	for i := 1; i < len(c.parts); i++ {
		ancestors = append(ancestors, store.Join(c.parts[:i]...))
	}
	if len(ancestors) > 0 {
		if err := tx.Where("path IN ?", ancestors).Delete(&Node{}).Error; err != nil {
			return fmt.Errorf("sqlstore: clear ancestors of %q: %w", c.path, err)
		}
	}

	leaves := make(map[string]any)
	store.Flatten(c.path, c.value, leaves)
	now := time.Now().UTC()
	rows := make([]Node, 0, len(leaves))
	for p, v := range leaves {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("sqlstore: encode %q: %w", p, err)
		}
		rows = append(rows, Node{Path: p, Value: string(data), UpdatedAt: now})
	}
	if err := tx.CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("sqlstore: write %q: %w", c.path, err)
	}
	return nil
}

// Push implements store.Store.
func (s *Store) Push(_ context.Context, path string) (string, error) {
	if _, err := store.Split(path); err != nil {
		return "", err
	}
	return uuid.New(), nil
}

// Query implements store.Store. Filtering happens after loading the parent
// subtree, which keeps the SQL portable between PostgreSQL and SQLite.
func (s *Store) Query(ctx context.Context, path, child string, equal any) (store.Snapshot, error) {
	parts, err := store.Split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	p := store.Join(parts...)
	v, err := s.load(ctx, s.db, p)
	if err != nil {
		return store.Snapshot{}, err
	}
	matched, err := store.FilterChildren(v, child, equal)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap := store.Snapshot{Path: p}
	if matched != nil {
		snap.Value = store.Export(matched)
	}
	return snap, nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, path string) (*store.Subscription, error) {
	parts, err := store.Split(path)
	if err != nil {
		return nil, err
	}
	p := store.Join(parts...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	v, err := s.load(ctx, s.db, p)
	if err != nil {
		return nil, err
	}
	return s.hub.Add(p, store.Snapshot{Path: p, Value: store.Export(v)}), nil
}

// Close cancels open subscriptions. The database handle belongs to the caller.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}
