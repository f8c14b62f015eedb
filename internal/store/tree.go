package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Normalize converts value to the internal tree form: nested map[string]any
// with string, float64 and bool leaves. Lists become index-keyed maps; nils
// and empty maps disappear. A value with nothing left returns nil.
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("store: decode value: %w", err)
	}
	return compact(decoded)
}

func compact(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			if !ValidKey(k) {
				return nil, fmt.Errorf("%w: key %q", ErrInvalidPath, k)
			}
			cc, err := compact(c)
			if err != nil {
				return nil, err
			}
			if cc != nil {
				out[k] = cc
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []any:
		out := make(map[string]any, len(t))
		for i, c := range t {
			cc, err := compact(c)
			if err != nil {
				return nil, err
			}
			if cc != nil {
				out[strconv.Itoa(i)] = cc
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return t, nil
	}
}

// Export deep-copies an internal value for callers, turning maps keyed by a
// dense 0..n-1 index back into lists.
func Export(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = Export(c)
	}
	if list, ok := asList(out); ok {
		return list
	}
	return out
}

func asList(m map[string]any) ([]any, bool) {
	list := make([]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return nil, false
		}
		list[i] = v
	}
	return list, true
}

// Tree is a mutable in-memory value tree. It is not safe for concurrent use.
type Tree struct {
	root map[string]any
}

// Get returns the internal value at parts. Callers must not mutate it.
func (t *Tree) Get(parts []string) any {
	var cur any = t.root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	if m, ok := cur.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return cur
}

// Set stores an already normalized value at parts; nil removes. Scalars on
// the way down are replaced by maps and emptied parents are pruned.
func (t *Tree) Set(parts []string, value any) error {
	if len(parts) == 0 {
		if value == nil {
			t.root = nil
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: root must hold a map", ErrInvalidPath)
		}
		t.root = m
		return nil
	}
	if t.root == nil {
		if value == nil {
			return nil
		}
		t.root = make(map[string]any)
	}
	node := t.root
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			if value == nil {
				return nil
			}
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	last := parts[len(parts)-1]
	if value == nil {
		delete(node, last)
		prune(t.root, parts)
		return nil
	}
	node[last] = value
	return nil
}

// prune drops maps along parts that became empty. It reports whether node is empty.
func prune(node map[string]any, parts []string) bool {
	if len(parts) > 0 {
		if child, ok := node[parts[0]].(map[string]any); ok && prune(child, parts[1:]) {
			delete(node, parts[0])
		}
	}
	return len(node) == 0
}

// Flatten appends every leaf of value to out keyed by its full path.
func Flatten(base string, value any, out map[string]any) {
	m, ok := value.(map[string]any)
	if !ok {
		if value != nil {
			out[base] = value
		}
		return
	}
	for k, c := range m {
		Flatten(Join(base, k), c, out)
	}
}

// Unflatten rebuilds the internal value at base from leaves keyed by full path.
func Unflatten(base string, leaves map[string]any) (any, error) {
	baseParts, err := Split(base)
	if err != nil {
		return nil, err
	}
	var t Tree
	for p, v := range leaves {
		parts, err := Split(p)
		if err != nil {
			return nil, err
		}
		if len(parts) < len(baseParts) {
			continue
		}
		rel := parts[len(baseParts):]
		if len(rel) == 0 {
			return v, nil
		}
		if err := t.Set(rel, v); err != nil {
			return nil, err
		}
	}
	if t.root == nil {
		return nil, nil
	}
	return t.root, nil
}

// FilterChildren returns the children of value whose value at child equals
// equal. Only scalar comparisons can match.
func FilterChildren(value any, child string, equal any) (map[string]any, error) {
	childParts, err := Split(child)
	if err != nil {
		return nil, err
	}
	want, err := Normalize(equal)
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok || want == nil {
		return nil, nil
	}
	if _, isMap := want.(map[string]any); isMap {
		return nil, nil
	}
	out := make(map[string]any)
	for k, c := range m {
		t := Tree{}
		if cm, ok := c.(map[string]any); ok {
			t.root = cm
		} else {
			continue
		}
		if got := t.Get(childParts); got == want {
			out[k] = c
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
