// Package expr implements the object store's expression algebra: a small,
// pure, total-over-well-typed-inputs AST that compiles to native
// evaluation, a Postgres JSONB filter fragment, and an external analytics
// DSL fragment.
package expr

import "fmt"

// Value is any value the expression algebra can produce or consume: null,
// bool, int64, float64, string, or a list of the above.
type Value interface{}

// Context maps field names to their current values for native evaluation.
type Context map[string]Value

// truthy applies the algebra's definition of "falsy": null and false (and
// only those) are falsy. Zero values, empty strings, and empty lists are
// truthy.
func truthy(v Value) bool {
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	if ok {
		return b
	}
	return true
}

func asFloat64(v Value) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case nil:
		return 0, errNull
	default:
		return 0, fmt.Errorf("expr: value %v (%T) is not numeric", v, v)
	}
}

var errNull = fmt.Errorf("expr: null operand")
