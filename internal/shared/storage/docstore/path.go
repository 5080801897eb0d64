package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const maxPathDepth = 8

// SplitPath validates a dotted field path and returns its segments.
// Segments are limited to letters, digits, '_' and '-'.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(path, ".")
	if len(segs) > maxPathDepth {
		return nil, fmt.Errorf("%w: %q too deep", ErrInvalidPath, path)
	}
	for _, seg := range segs {
		if !validSegment(seg) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// sortedPaths validates every key of fields and returns them in a stable order.
func sortedPaths(fields map[string]any) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidPath)
	}
	paths := make([]string, 0, len(fields))
	for p := range fields {
		if _, err := SplitPath(p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// applyPath sets value at segs inside doc, replacing non-object parents with objects.
func applyPath(doc map[string]any, segs []string, value any) {
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// lookupPath returns the value at segs, if present.
func lookupPath(doc map[string]any, segs []string) (any, bool) {
	var cur any = doc
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// toGeneric round-trips v through JSON so stored values never alias caller memory.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
