package models

import (
	"strconv"
	"strings"
)

// SplitPath breaks "items[0].name" or "items.0.name" into its segments.
func SplitPath(path string) []string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	parts := strings.Split(path, ".")
	segments := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}

	return segments
}

// GetPath projects value along a dot/bracket path. An empty path returns value itself.
func GetPath(value any, path string) (any, bool) {
	current := value

	for _, segment := range SplitPath(path) {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}

			current = v[idx]
		case []map[string]any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}

			current = v[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// SetPath writes value at a dot path inside target, creating intermediate maps.
func SetPath(target map[string]any, path string, value any) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return
	}

	current := target

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}

		current = next
	}

	current[segments[len(segments)-1]] = value
}

// DeletePath removes the value at a dot path, if present.
func DeletePath(target map[string]any, path string) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return
	}

	current := target

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}

		current = next
	}

	delete(current, segments[len(segments)-1])
}
