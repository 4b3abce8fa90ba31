package filter

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// randomExpr builds a random boolean tree over three numeric attributes,
// using only operators whose negation the store can express, so
// normalization never fails for capability reasons.
func randomExpr(rng *rand.Rand, depth int) Expression {
	attrs := []string{"a", "b", "c"}
	ops := []Operator{Eq, Ne, Gt, Ge, Lt, Le}

	if depth <= 0 || rng.Intn(3) == 0 {
		return Where(
			attrs[rng.Intn(len(attrs))],
			ops[rng.Intn(len(ops))],
			int64(rng.Intn(4)),
		)
	}
	switch rng.Intn(3) {
	case 0:
		return And(randomExpr(rng, depth-1), randomExpr(rng, depth-1))
	case 1:
		return Or(randomExpr(rng, depth-1), randomExpr(rng, depth-1))
	default:
		return Not(randomExpr(rng, depth-1))
	}
}

// TestProperty_NormalizePreservesSemantics checks that for any expression
// over negatable operators, the DNF product set accepts exactly the same
// assignments as the original tree. Assignments are checked exhaustively
// over a small value domain.
func TestProperty_NormalizePreservesSemantics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("DNF is logically equivalent to the input tree", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			expr := randomExpr(rng, 3)

			products, err := NormalizeBounded(expr, 1<<16)
			if err != nil {
				// The only acceptable failure at this bound is none at
				// all; negatable operators never trip capability checks.
				return false
			}

			for a := int64(0); a < 4; a++ {
				for b := int64(0); b < 4; b++ {
					for c := int64(0); c < 4; c++ {
						values := map[string]any{"a": a, "b": b, "c": c}
						if Evaluate(expr, values) != EvaluateProducts(products, values) {
							return false
						}
					}
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.Property("products contain only predicates, never residual structure", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			expr := randomExpr(rng, 3)

			products, err := NormalizeBounded(expr, 1<<16)
			if err != nil {
				return false
			}
			for _, p := range products {
				for _, pred := range p {
					if pred.Op == Ew || pred.Attribute == "" {
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestProperty_ExplosionAlwaysBounded checks the expansion bound is
// enforced rather than overrun: either normalization succeeds within the
// bound or it fails with the complexity error.
func TestProperty_ExplosionAlwaysBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("product count never exceeds the bound", prop.ForAll(
		func(seed int64, bound int) bool {
			rng := rand.New(rand.NewSource(seed))
			expr := randomExpr(rng, 4)

			products, err := NormalizeBounded(expr, bound)
			if err != nil {
				return errors.Is(err, ierrors.ErrExpressionTooComplex)
			}
			return len(products) <= bound
		},
		gen.Int64(),
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}
