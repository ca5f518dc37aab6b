// Package fieldpath resolves bracket-notation paths such as
// "profile[username]" against decoded request data.
//
// Request data is the loosely typed shape produced by encoding/json or by
// Expand: maps keyed by string, slices, and leaf values (strings, numbers,
// booleans). url.Values is walked too, a single value per key standing for
// a leaf. A walk stops at the first leaf it meets, so "user[name]"
// against {"user": "alice"} yields "alice".
package fieldpath

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Path is a parsed field path: the ordered keys to walk.
type Path []string

// Parse turns "a[b][c]" into Path{"a", "b", "c"}. Closing brackets are
// dropped and the remainder is split on opening brackets, so malformed
// input degrades to literal keys rather than failing.
func Parse(s string) Path {
	return Path(strings.Split(strings.ReplaceAll(s, "]", ""), "["))
}

// String renders the path back into bracket notation.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p[0])
	for _, k := range p[1:] {
		b.WriteByte('[')
		b.WriteString(k)
		b.WriteByte(']')
	}
	return b.String()
}

// Lookup walks root key by key. It reports false when root is nil, when a
// key is absent, when a value on the way is null, or when the path runs
// out while still pointing at a nested value. A leaf met before the last
// key is returned as the result.
func (p Path) Lookup(root any) (any, bool) {
	if root == nil {
		return nil, false
	}
	cur := root
	for _, key := range p {
		v, ok := child(cur, key)
		if !ok || v == nil {
			return nil, false
		}
		if !nested(v) {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// child returns the value stored under key in a nested value.
func child(v any, key string) (any, bool) {
	switch n := v.(type) {
	case map[string]any:
		c, ok := n[key]
		return c, ok
	case map[string]string:
		c, ok := n[key]
		return c, ok
	case url.Values:
		return multiValue(n[key])
	case map[string][]string:
		return multiValue(n[key])
	case []any:
		i, ok := index(key, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true
	case []string:
		i, ok := index(key, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true
	}
	return nil, false
}

// multiValue unwraps a single query or form value. Repeated values stay a
// slice, matching what Expand produces for repeated keys.
func multiValue(vs []string) (any, bool) {
	switch len(vs) {
	case 0:
		return nil, false
	case 1:
		return vs[0], true
	}
	return vs, true
}

func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func nested(v any) bool {
	switch v.(type) {
	case map[string]any, map[string]string, map[string][]string, url.Values, []any, []string:
		return true
	}
	return false
}

// Text converts a leaf into credential text. Values a form or JSON decoder
// would treat as empty (the empty string, zero, false) yield "".
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return ""
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
		return t.String()
	case nil:
		return ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() != 0 {
			return strconv.FormatInt(rv.Int(), 10)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if rv.Uint() != 0 {
			return strconv.FormatUint(rv.Uint(), 10)
		}
	case reflect.Float32:
		if rv.Float() != 0 {
			return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
		}
	case reflect.Float64:
		if rv.Float() != 0 {
			return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
		}
	}
	return ""
}
