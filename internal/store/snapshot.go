package store

import (
	"encoding/json"
	"path"
	"sort"
	"strconv"
)

// Snapshot is an immutable copy of the value at a path. Value holds
// map[string]any, []any, string, float64, bool, or nil when nothing is stored.
type Snapshot struct {
	Path  string
	Value any
}

// Key returns the last segment of the snapshot path.
func (s Snapshot) Key() string {
	if s.Path == "" {
		return ""
	}
	return path.Base(s.Path)
}

// Exists reports whether anything is stored at the path.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	data, err := json.Marshal(s.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Child returns the snapshot of a relative path below s.
func (s Snapshot) Child(rel string) Snapshot {
	parts, err := Split(rel)
	if err != nil {
		return Snapshot{Path: Join(s.Path, rel)}
	}
	cur := s.Value
	for _, p := range parts {
		cur = childValue(cur, p)
		if cur == nil {
			break
		}
	}
	return Snapshot{Path: Join(s.Path, rel), Value: cur}
}

// Keys returns the child keys of a map or list value in ascending order.
func (s Snapshot) Keys() []string {
	switch v := s.Value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, 0, len(v))
		for i := range v {
			if v[i] != nil {
				keys = append(keys, strconv.Itoa(i))
			}
		}
		return keys
	}
	return nil
}

// Children returns the child snapshots in key order.
func (s Snapshot) Children() []Snapshot {
	keys := s.Keys()
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, Snapshot{Path: Join(s.Path, k), Value: childValue(s.Value, k)})
	}
	return out
}

func childValue(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		return t[key]
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil
		}
		return t[i]
	}
	return nil
}
