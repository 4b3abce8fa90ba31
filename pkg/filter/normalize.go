package filter

import (
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// DefaultMaxProducts bounds DNF expansion. Distributing AND over OR is
// exponential in the worst case; an expression that would exceed the bound
// fails with ErrExpressionTooComplex instead of hanging.
const DefaultMaxProducts = 64

// Normalize rewrites expr into disjunctive normal form: a set of products
// (conjunctions of predicates) whose disjunction is logically equivalent to
// the input. NOT is pushed down to the leaves via De Morgan; negations the
// store cannot evaluate (contains, starts-with, presence) are rejected.
//
// A nil expression normalizes to nil, meaning "match all".
func Normalize(expr Expression) ([]Product, error) {
	return NormalizeBounded(expr, DefaultMaxProducts)
}

// NormalizeBounded is Normalize with an explicit product-count bound.
func NormalizeBounded(expr Expression, maxProducts int) ([]Product, error) {
	if expr == nil {
		return nil, nil
	}
	pushed, err := pushNegations(expr, false)
	if err != nil {
		return nil, err
	}
	products, err := distribute(pushed, maxProducts)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		for _, pred := range p {
			if err := checkSupported(pred); err != nil {
				return nil, err
			}
		}
	}
	return products, nil
}

// pushNegations rewrites the tree so NOT appears only inside predicate
// leaves (as a negated operator). negated tracks whether an odd number of
// NOTs wraps the current node.
func pushNegations(expr Expression, negated bool) (Expression, error) {
	switch e := expr.(type) {
	case Predicate:
		if !negated {
			return e, nil
		}
		return negatePredicate(e)
	case notExpr:
		return pushNegations(e.inner, !negated)
	case andExpr:
		left, err := pushNegations(e.left, negated)
		if err != nil {
			return nil, err
		}
		right, err := pushNegations(e.right, negated)
		if err != nil {
			return nil, err
		}
		if negated {
			return orExpr{left: left, right: right}, nil
		}
		return andExpr{left: left, right: right}, nil
	case orExpr:
		left, err := pushNegations(e.left, negated)
		if err != nil {
			return nil, err
		}
		right, err := pushNegations(e.right, negated)
		if err != nil {
			return nil, err
		}
		if negated {
			return andExpr{left: left, right: right}, nil
		}
		return orExpr{left: left, right: right}, nil
	default:
		return nil, ierrors.NewCapability(ierrors.ErrUnsupportedOperator, "", "")
	}
}

// negatePredicate inverts a leaf operator. Operators whose negation the
// store cannot express fail here with the offending attribute and operator.
func negatePredicate(p Predicate) (Expression, error) {
	switch p.Op {
	case Eq:
		return Predicate{Attribute: p.Attribute, Op: Ne, Value: p.Value}, nil
	case Ne:
		return Predicate{Attribute: p.Attribute, Op: Eq, Value: p.Value}, nil
	case Gt:
		return Predicate{Attribute: p.Attribute, Op: Le, Value: p.Value}, nil
	case Ge:
		return Predicate{Attribute: p.Attribute, Op: Lt, Value: p.Value}, nil
	case Lt:
		return Predicate{Attribute: p.Attribute, Op: Ge, Value: p.Value}, nil
	case Le:
		return Predicate{Attribute: p.Attribute, Op: Gt, Value: p.Value}, nil
	default:
		// not(co), not(sw), not(pr) and anything touching ew cannot be
		// evaluated by the store.
		return nil, ierrors.NewCapability(ierrors.ErrUnsupportedOperator, p.Attribute, "not "+string(p.Op))
	}
}

// distribute expands a negation-free tree into products, ANDing across OR
// branches per standard DNF expansion.
func distribute(expr Expression, maxProducts int) ([]Product, error) {
	switch e := expr.(type) {
	case Predicate:
		return []Product{{e}}, nil
	case orExpr:
		left, err := distribute(e.left, maxProducts)
		if err != nil {
			return nil, err
		}
		right, err := distribute(e.right, maxProducts)
		if err != nil {
			return nil, err
		}
		if len(left)+len(right) > maxProducts {
			return nil, ierrors.NewCapability(ierrors.ErrExpressionTooComplex, "", "")
		}
		return append(left, right...), nil
	case andExpr:
		left, err := distribute(e.left, maxProducts)
		if err != nil {
			return nil, err
		}
		right, err := distribute(e.right, maxProducts)
		if err != nil {
			return nil, err
		}
		if len(left)*len(right) > maxProducts {
			return nil, ierrors.NewCapability(ierrors.ErrExpressionTooComplex, "", "")
		}
		out := make([]Product, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				merged := make(Product, 0, len(l)+len(r))
				merged = append(merged, l...)
				merged = append(merged, r...)
				out = append(out, merged)
			}
		}
		return out, nil
	default:
		return nil, ierrors.NewCapability(ierrors.ErrUnsupportedOperator, "", "")
	}
}

// checkSupported rejects operators the store has no expression fragment
// for. Rejection happens here, fail-fast, so nothing unsupported reaches
// the request builder.
func checkSupported(p Predicate) error {
	switch p.Op {
	case Eq, Ne, Co, Sw, Pr, Gt, Ge, Lt, Le:
		return nil
	default:
		return ierrors.NewCapability(ierrors.ErrUnsupportedOperator, p.Attribute, string(p.Op))
	}
}
