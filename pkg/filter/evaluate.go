package filter

import (
	"strings"
)

// Evaluate tests an expression against a flat attribute assignment. It is
// used for client-side residual evaluation and by the equivalence tests;
// it supports string, int64, bool and []string values. Missing attributes
// fail every predicate except a negated presence check.
func Evaluate(expr Expression, values map[string]any) bool {
	if expr == nil {
		return true
	}
	switch e := expr.(type) {
	case Predicate:
		return evaluatePredicate(e, values)
	case andExpr:
		return Evaluate(e.left, values) && Evaluate(e.right, values)
	case orExpr:
		return Evaluate(e.left, values) || Evaluate(e.right, values)
	case notExpr:
		return !Evaluate(e.inner, values)
	default:
		return false
	}
}

// EvaluateProducts tests a DNF product set: true when any product's
// predicates all hold. An empty set means "match all".
func EvaluateProducts(products []Product, values map[string]any) bool {
	if len(products) == 0 {
		return true
	}
	for _, product := range products {
		all := true
		for _, pred := range product {
			if !evaluatePredicate(pred, values) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func evaluatePredicate(p Predicate, values map[string]any) bool {
	value, present := values[p.Attribute]
	if p.Op == Pr {
		if !present {
			return false
		}
		if s, ok := value.(string); ok {
			return s != ""
		}
		return true
	}
	if !present {
		return false
	}

	switch v := value.(type) {
	case string:
		lit, ok := p.Value.(string)
		if !ok {
			return false
		}
		return compareString(p.Op, v, lit)
	case int64:
		lit, ok := toInt64(p.Value)
		if !ok {
			return false
		}
		return compareOrdered(p.Op, v, lit)
	case bool:
		lit, ok := p.Value.(bool)
		if !ok {
			return false
		}
		switch p.Op {
		case Eq:
			return v == lit
		case Ne:
			return v != lit
		default:
			return false
		}
	case []string:
		lit, ok := p.Value.(string)
		if !ok {
			return false
		}
		switch p.Op {
		case Co:
			for _, member := range v {
				if member == lit {
					return true
				}
			}
			return false
		default:
			return false
		}
	default:
		return false
	}
}

func compareString(op Operator, v, lit string) bool {
	switch op {
	case Eq:
		return v == lit
	case Ne:
		return v != lit
	case Co:
		return strings.Contains(v, lit)
	case Sw:
		return strings.HasPrefix(v, lit)
	case Gt:
		return v > lit
	case Ge:
		return v >= lit
	case Lt:
		return v < lit
	case Le:
		return v <= lit
	default:
		return false
	}
}

func compareOrdered(op Operator, v, lit int64) bool {
	switch op {
	case Eq:
		return v == lit
	case Ne:
		return v != lit
	case Gt:
		return v > lit
	case Ge:
		return v >= lit
	case Lt:
		return v < lit
	case Le:
		return v <= lit
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
