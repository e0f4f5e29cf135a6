package config

import (
	"strconv"
	"strings"
)

// DeepMerge merges src into dst and returns dst. Nested maps merge key by key;
// slices and scalars from src replace the value in dst. Keys are never removed.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, val := range src {
		srcMap, srcIsMap := asMap(val)
		dstMap, dstIsMap := asMap(dst[key])
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = clone(val)
	}
	return dst
}

// Lookup navigates a dotted path through nested maps and slices.
func Lookup(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	var cur any = root
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if s, ok := k.(string); ok {
				out[s] = val
			}
		}
		return out, true
	}
	return nil, false
}

// clone deep-copies maps and slices so snapshots never alias the store.
func clone(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = clone(val)
		}
		return out
	}
	switch s := v.(type) {
	case []any:
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = clone(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = clone(val)
		}
		return out
	case []string:
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = val
		}
		return out
	}
	return v
}
