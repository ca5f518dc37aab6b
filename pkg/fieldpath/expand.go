package fieldpath

import (
	"net/url"
	"sort"
)

// Expand builds nested maps out of bracket-notation form keys, so that
// "user[name]=alice" becomes {"user": {"name": "alice"}}. Repeated keys
// become a []any of their values. When a key would have to descend
// through a value that is already a leaf, the leaf is kept and the deeper
// key is dropped.
func Expand(values url.Values) map[string]any {
	root := make(map[string]any, len(values))

	// Deterministic conflict resolution: shorter keys win over keys that
	// would nest beneath them.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vs := values[k]
		if len(vs) == 0 {
			continue
		}
		var leaf any = vs[0]
		if len(vs) > 1 {
			items := make([]any, len(vs))
			for i, v := range vs {
				items[i] = v
			}
			leaf = items
		}
		insert(root, Parse(k), leaf)
	}
	return root
}

func insert(m map[string]any, path Path, leaf any) {
	for i, key := range path {
		if i == len(path)-1 {
			if _, exists := m[key]; !exists {
				m[key] = leaf
			}
			return
		}
		next, exists := m[key]
		if !exists {
			sub := make(map[string]any)
			m[key] = sub
			m = sub
			continue
		}
		sub, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = sub
	}
}
