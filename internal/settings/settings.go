// Package settings implements the node settings tree: ordered keys mapped to
// tagged values, with fallible typed accessors.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Kind tags the variant stored under a key.
type Kind int

const (
	KindInt Kind = iota + 1
	KindDouble
	KindString
	KindBool
	KindStrings
	KindTree
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindStrings:
		return "string list"
	case KindTree:
		return "tree"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type value struct {
	kind Kind
	i    int64
	d    float64
	s    string
	b    bool
	ss   []string
	tree *Tree
}

// Tree is an ordered settings tree. The zero value is empty and usable.
type Tree struct {
	keys   []string
	values map[string]value
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

func (t *Tree) set(key string, v value) {
	if t.values == nil {
		t.values = make(map[string]value)
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
}

// SetInt stores an int.
func (t *Tree) SetInt(key string, v int64) { t.set(key, value{kind: KindInt, i: v}) }

// SetDouble stores a double.
func (t *Tree) SetDouble(key string, v float64) { t.set(key, value{kind: KindDouble, d: v}) }

// SetString stores a string.
func (t *Tree) SetString(key string, v string) { t.set(key, value{kind: KindString, s: v}) }

// SetBool stores a bool.
func (t *Tree) SetBool(key string, v bool) { t.set(key, value{kind: KindBool, b: v}) }

// SetStrings stores a string list.
func (t *Tree) SetStrings(key string, v []string) {
	t.set(key, value{kind: KindStrings, ss: append([]string(nil), v...)})
}

// AddTree creates and returns a nested tree under key, replacing any value.
func (t *Tree) AddTree(key string) *Tree {
	sub := New()
	t.set(key, value{kind: KindTree, tree: sub})
	return sub
}

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Kind returns the variant under key.
func (t *Tree) Kind(key string) (Kind, bool) {
	v, ok := t.values[key]
	return v.kind, ok
}

// Keys returns the keys in insertion order.
func (t *Tree) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Len returns the number of keys.
func (t *Tree) Len() int { return len(t.keys) }

func (t *Tree) lookup(key string, kind Kind) (value, error) {
	v, ok := t.values[key]
	if !ok {
		return value{}, nferrors.InvalidSettingsf("missing setting %q", key)
	}
	if v.kind != kind {
		return value{}, nferrors.InvalidSettingsf("setting %q is a %s, not a %s", key, v.kind, kind)
	}
	return v, nil
}

// Int returns the int under key. Doubles are not converted.
func (t *Tree) Int(key string) (int64, error) {
	v, err := t.lookup(key, KindInt)
	return v.i, err
}

// Double returns the double under key. Ints are widened.
func (t *Tree) Double(key string) (float64, error) {
	if v, ok := t.values[key]; ok && v.kind == KindInt {
		return float64(v.i), nil
	}
	v, err := t.lookup(key, KindDouble)
	return v.d, err
}

// String returns the string under key.
func (t *Tree) String(key string) (string, error) {
	v, err := t.lookup(key, KindString)
	return v.s, err
}

// Bool returns the bool under key.
func (t *Tree) Bool(key string) (bool, error) {
	v, err := t.lookup(key, KindBool)
	return v.b, err
}

// Strings returns the string list under key.
func (t *Tree) Strings(key string) ([]string, error) {
	v, err := t.lookup(key, KindStrings)
	return append([]string(nil), v.ss...), err
}

// Subtree returns the nested tree under key.
func (t *Tree) Subtree(key string) (*Tree, error) {
	v, err := t.lookup(key, KindTree)
	return v.tree, err
}

// IntOr returns the int under key or def when absent or mistyped.
func (t *Tree) IntOr(key string, def int64) int64 {
	if v, err := t.Int(key); err == nil {
		return v
	}
	return def
}

// StringOr returns the string under key or def when absent or mistyped.
func (t *Tree) StringOr(key, def string) string {
	if v, err := t.String(key); err == nil {
		return v
	}
	return def
}

// BoolOr returns the bool under key or def when absent or mistyped.
func (t *Tree) BoolOr(key string, def bool) bool {
	if v, err := t.Bool(key); err == nil {
		return v
	}
	return def
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	out := New()
	for _, k := range t.keys {
		v := t.values[k]
		switch v.kind {
		case KindTree:
			v.tree = v.tree.Clone()
		case KindStrings:
			v.ss = append([]string(nil), v.ss...)
		}
		out.set(k, v)
	}
	return out
}

// ToMap converts the tree to plain Go values: int64, float64, string, bool,
// []string and nested map[string]any.
func (t *Tree) ToMap() map[string]any {
	out := make(map[string]any, len(t.keys))
	for _, k := range t.keys {
		v := t.values[k]
		switch v.kind {
		case KindInt:
			out[k] = v.i
		case KindDouble:
			out[k] = v.d
		case KindString:
			out[k] = v.s
		case KindBool:
			out[k] = v.b
		case KindStrings:
			out[k] = append([]string(nil), v.ss...)
		case KindTree:
			out[k] = v.tree.ToMap()
		}
	}
	return out
}

// FromMap builds a tree from decoded YAML or JSON. JSON numbers should be
// decoded as json.Number so ints stay ints. Map keys are added in sorted
// order.
func FromMap(m map[string]any) (*Tree, error) {
	t := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := t.put(k, m[k]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) put(key string, raw any) error {
	switch v := raw.(type) {
	case int:
		t.SetInt(key, int64(v))
	case int64:
		t.SetInt(key, v)
	case uint64:
		t.SetInt(key, int64(v))
	case float64:
		t.SetDouble(key, v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			t.SetInt(key, i)
		} else if f, err := v.Float64(); err == nil {
			t.SetDouble(key, f)
		} else {
			return nferrors.InvalidSettingsf("setting %q has malformed number %q", key, v)
		}
	case string:
		t.SetString(key, v)
	case bool:
		t.SetBool(key, v)
	case []string:
		t.SetStrings(key, v)
	case []any:
		list := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			list[i] = s
		}
		t.SetStrings(key, list)
	case map[string]any:
		sub, err := FromMap(v)
		if err != nil {
			return err
		}
		t.set(key, value{kind: KindTree, tree: sub})
	case nil:
		return nferrors.InvalidSettingsf("setting %q has no value", key)
	default:
		return nferrors.InvalidSettingsf("setting %q has unsupported type %T", key, raw)
	}
	return nil
}
