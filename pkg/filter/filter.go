// Package filter models boolean filter expressions over table attributes
// and normalizes them to disjunctive normal form for query planning.
//
// The input is a structured predicate tree, typically translated from a
// SCIM-style filter by entity-level code. Operators the store cannot
// evaluate (ends-with, absence) are rejected during normalization rather
// than silently mis-evaluated.
package filter

import (
	"fmt"
	"strings"
)

// Operator is a predicate comparison operator.
type Operator string

const (
	Eq Operator = "eq" // equal
	Ne Operator = "ne" // not equal
	Co Operator = "co" // contains
	Sw Operator = "sw" // starts with
	Ew Operator = "ew" // ends with; unsupported by the store, always rejected
	Pr Operator = "pr" // present (attribute exists and is non-empty)
	Gt Operator = "gt"
	Ge Operator = "ge"
	Lt Operator = "lt"
	Le Operator = "le"
)

// Expression is a node in a boolean filter tree.
type Expression interface {
	String() string
	isExpression()
}

// Predicate is a leaf comparison: attribute OP literal.
type Predicate struct {
	Value     any
	Attribute string
	Op        Operator
}

func (p Predicate) isExpression() {}

func (p Predicate) String() string {
	if p.Op == Pr {
		return fmt.Sprintf("%s pr", p.Attribute)
	}
	return fmt.Sprintf("%s %s %v", p.Attribute, p.Op, p.Value)
}

// Where builds a predicate leaf.
func Where(attribute string, op Operator, value any) Predicate {
	return Predicate{Attribute: attribute, Op: op, Value: value}
}

// Present builds an attribute-presence predicate.
func Present(attribute string) Predicate {
	return Predicate{Attribute: attribute, Op: Pr}
}

type andExpr struct {
	left, right Expression
}

func (andExpr) isExpression() {}

func (e andExpr) String() string {
	return "(" + e.left.String() + " and " + e.right.String() + ")"
}

type orExpr struct {
	left, right Expression
}

func (orExpr) isExpression() {}

func (e orExpr) String() string {
	return "(" + e.left.String() + " or " + e.right.String() + ")"
}

type notExpr struct {
	inner Expression
}

func (notExpr) isExpression() {}

func (e notExpr) String() string {
	return "not(" + e.inner.String() + ")"
}

// And combines expressions conjunctively. Nil operands are dropped.
func And(exprs ...Expression) Expression {
	return combine(exprs, func(l, r Expression) Expression { return andExpr{left: l, right: r} })
}

// Or combines expressions disjunctively. Nil operands are dropped.
func Or(exprs ...Expression) Expression {
	return combine(exprs, func(l, r Expression) Expression { return orExpr{left: l, right: r} })
}

// Not negates an expression.
func Not(expr Expression) Expression {
	return notExpr{inner: expr}
}

func combine(exprs []Expression, join func(l, r Expression) Expression) Expression {
	var result Expression
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if result == nil {
			result = e
			continue
		}
		result = join(result, e)
	}
	return result
}

// Product is a conjunction of predicates with no OR or NOT remaining.
type Product []Predicate

func (p Product) String() string {
	parts := make([]string, len(p))
	for i, pred := range p {
		parts[i] = pred.String()
	}
	return strings.Join(parts, " and ")
}

// Find returns the first predicate on the named attribute, if any.
func (p Product) Find(attribute string) (Predicate, bool) {
	for _, pred := range p {
		if pred.Attribute == attribute {
			return pred, true
		}
	}
	return Predicate{}, false
}

// Without returns the product minus the given predicates, preserving order.
func (p Product) Without(drop ...Predicate) Product {
	out := make(Product, 0, len(p))
	for _, pred := range p {
		skip := false
		for _, d := range drop {
			if pred == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, pred)
		}
	}
	return out
}
