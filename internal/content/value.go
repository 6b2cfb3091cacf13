package content

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the node types a document body may hold.
type Value interface {
	contentValue()
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) contentValue() {}

// Bool is a boolean leaf.
type Bool bool

func (Bool) contentValue() {}

// Int is an integral number leaf.
type Int int64

func (Int) contentValue() {}

// Float is a non-integral number leaf.
type Float float64

func (Float) contentValue() {}

// String is a plain string leaf. Links live here.
type String string

func (String) contentValue() {}

// Text is an opaque rich-text value. Its contents are never inspected
// for links.
type Text string

func (Text) contentValue() {}

// List is an ordered sequence of values.
type List []Value

func (List) contentValue() {}

// Map is a string-keyed mapping. Use SortedKeys for deterministic iteration.
type Map map[string]Value

func (Map) contentValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// String returns the string stored under key, if there is one.
func (m Map) String(key string) (string, bool) {
	s, ok := m[key].(String)
	return string(s), ok
}

// Map returns the mapping stored under key, if there is one.
func (m Map) Map(key string) (Map, bool) {
	sub, ok := m[key].(Map)
	return sub, ok
}

// List returns the sequence stored under key, if there is one.
func (m Map) List(key string) (List, bool) {
	l, ok := m[key].(List)
	return l, ok
}

// Strings returns the string elements of l, skipping anything else.
func (l List) Strings() []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// Clone returns a deep copy of v. Leaves are immutable and shared.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Map:
		out := make(Map, len(val))
		for k, e := range val {
			out[k] = Clone(e)
		}
		return out
	case List:
		out := make(List, len(val))
		for i, e := range val {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
