// Package executor runs validated workflow definitions on the durable
// engine: topological dispatch of action, condition, and loop nodes, state
// accumulation across steps, and activity-side step logging.
package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches one {{ path }} occurrence. The body excludes
// closing braces so adjacent placeholders never merge.
var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// missingValue is substituted for dot-paths that do not resolve, preserving
// the wire behaviour action services already depend on.
const missingValue = "None"

// NewState seeds the accumulated workflow state from the caller-supplied
// inputs. Node results land under "results" keyed by node id.
func NewState(inputs map[string]any) map[string]any {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return map[string]any{
		"inputs":  inputs,
		"results": map[string]any{},
	}
}

// Interpolate replaces every {{ path }} placeholder with the string form of
// the value at that dot-path in state. Strings are scanned for placeholders,
// maps recurse on values, slices element-wise; other values pass through
// unchanged. The input is never mutated.
func Interpolate(v any, state map[string]any) any {
	switch val := v.(type) {
	case string:
		return placeholderPattern.ReplaceAllStringFunc(val, func(m string) string {
			path := strings.TrimSpace(m[2 : len(m)-2])
			res, ok := ValueAt(state, path)
			if !ok {
				return missingValue
			}
			return stringify(res)
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Interpolate(item, state)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Interpolate(item, state)
		}
		return out
	default:
		return v
	}
}

// InterpolateConfig interpolates an action node's configuration map.
func InterpolateConfig(cfg map[string]any, state map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out, _ := Interpolate(cfg, state).(map[string]any)
	return out
}

// ValueAt resolves a dot-separated path against nested string-keyed maps.
// The second return reports whether every segment resolved.
func ValueAt(state map[string]any, path string) (any, bool) {
	var value any = state
	for _, part := range strings.Split(path, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func stringify(v any) string {
	if v == nil {
		return missingValue
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
