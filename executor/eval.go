package executor

import (
	"reflect"
	"strconv"
	"strings"
)

// comparators ordered so two-character operators match before their
// one-character prefixes.
var comparators = []string{"==", "!=", ">=", "<=", ">", "<"}

// EvalCondition evaluates a condition expression against the accumulated
// state. Supported forms:
//
//	<path|literal> <op> <path|literal>   op one of ==, !=, >, >=, <, <=
//	<path|literal> contains <path|literal>
//	<path>                               truthiness of the resolved value
//
// Literals are quoted strings, numbers, true, false, or null; any other
// token is treated as a dot-path into state. Empty or unparseable conditions
// evaluate to true so a malformed condition never blocks a run. The
// evaluator never executes arbitrary expressions.
func EvalCondition(condition string, state map[string]any) bool {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true
	}
	if left, right, ok := splitContains(cond); ok {
		return contains(operand(left, state), operand(right, state))
	}
	for _, op := range comparators {
		idx := strings.Index(cond, op)
		if idx < 0 {
			continue
		}
		left := operand(strings.TrimSpace(cond[:idx]), state)
		right := operand(strings.TrimSpace(cond[idx+len(op):]), state)
		return compare(op, left, right)
	}
	if strings.ContainsAny(cond, " \t") {
		// Free text, not a path. The evaluator stays permissive.
		return true
	}
	v, _ := ValueAt(state, cond)
	return truthy(v)
}

func splitContains(cond string) (left, right string, ok bool) {
	idx := strings.Index(cond, " contains ")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(cond[:idx]), strings.TrimSpace(cond[idx+len(" contains "):]), true
}

// operand resolves a condition token to a value: quoted string, numeric,
// boolean, or null literals are taken as written, everything else is looked
// up as a dot-path in state.
func operand(token string, state map[string]any) any {
	if token == "" {
		return nil
	}
	if len(token) >= 2 {
		first, last := token[0], token[len(token)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return token[1 : len(token)-1]
		}
	}
	switch token {
	case "true", "True":
		return true
	case "false", "False":
		return false
	case "null", "nil", "None":
		return nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	v, _ := ValueAt(state, token)
	return v
}

func compare(op string, left, right any) bool {
	switch op {
	case "==":
		return equal(left, right)
	case "!=":
		return !equal(left, right)
	}

	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			switch op {
			case ">":
				return lf > rf
			case ">=":
				return lf >= rf
			case "<":
				return lf < rf
			case "<=":
				return lf <= rf
			}
		}
	}
	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			switch op {
			case ">":
				return ls > rs
			case ">=":
				return ls >= rs
			case "<":
				return ls < rs
			case "<=":
				return ls <= rs
			}
		}
	}
	return false
}

func equal(left, right any) bool {
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return lf == rf
		}
	}
	return reflect.DeepEqual(left, right)
}

func contains(left, right any) bool {
	if right == nil {
		return false
	}
	switch l := left.(type) {
	case string:
		return strings.Contains(l, stringify(right))
	case []any:
		for _, item := range l {
			if equal(item, right) {
				return true
			}
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
