package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePredicates(t *testing.T) {
	values := map[string]any{
		"username": "alice",
		"age":      int64(30),
		"active":   true,
		"groups":   []string{"admins", "users"},
		"note":     "",
	}

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{name: "string eq", expr: Where("username", Eq, "alice"), want: true},
		{name: "string ne", expr: Where("username", Ne, "bob"), want: true},
		{name: "string co", expr: Where("username", Co, "lic"), want: true},
		{name: "string sw", expr: Where("username", Sw, "al"), want: true},
		{name: "string sw miss", expr: Where("username", Sw, "bo"), want: false},
		{name: "string range", expr: Where("username", Lt, "bob"), want: true},
		{name: "number gt", expr: Where("age", Gt, int64(18)), want: true},
		{name: "number le miss", expr: Where("age", Le, int64(18)), want: false},
		{name: "bool eq", expr: Where("active", Eq, true), want: true},
		{name: "list membership", expr: Where("groups", Co, "admins"), want: true},
		{name: "list membership miss", expr: Where("groups", Co, "nobody"), want: false},
		{name: "present", expr: Present("username"), want: true},
		{name: "present empty string", expr: Present("note"), want: false},
		{name: "present missing", expr: Present("phone"), want: false},
		{name: "missing attribute fails eq", expr: Where("phone", Eq, "555"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.expr, values))
		})
	}
}

func TestEvaluateBooleanStructure(t *testing.T) {
	values := map[string]any{"a": int64(1), "b": int64(2)}

	assert.True(t, Evaluate(And(Where("a", Eq, int64(1)), Where("b", Eq, int64(2))), values))
	assert.False(t, Evaluate(And(Where("a", Eq, int64(1)), Where("b", Eq, int64(3))), values))
	assert.True(t, Evaluate(Or(Where("a", Eq, int64(9)), Where("b", Eq, int64(2))), values))
	assert.True(t, Evaluate(Not(Where("a", Eq, int64(9))), values))
	assert.True(t, Evaluate(nil, values))
}

func TestEvaluateProducts(t *testing.T) {
	values := map[string]any{"status": "active", "age": int64(30)}

	products := []Product{
		{Where("status", Eq, "pending")},
		{Where("status", Eq, "active"), Where("age", Ge, int64(18))},
	}
	assert.True(t, EvaluateProducts(products, values))

	products = []Product{
		{Where("status", Eq, "pending")},
		{Where("status", Eq, "active"), Where("age", Ge, int64(65))},
	}
	assert.False(t, EvaluateProducts(products, values))

	// Empty set matches everything.
	assert.True(t, EvaluateProducts(nil, values))
}
