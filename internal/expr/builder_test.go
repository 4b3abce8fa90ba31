package expr

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/catalog"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
	"github.com/theory-cloud/indextheory/pkg/filter"
)

func testTable(t *testing.T) *catalog.Table {
	t.Helper()
	table, err := catalog.New("users",
		catalog.WithKey("id", ""),
		catalog.WithAttributes(
			attr.String("id"),
			attr.String("username"),
			attr.Number("age"),
			attr.Bool("active"),
			attr.StringList("groups"),
			// "status" and "name" are DynamoDB reserved words.
			attr.String("status"),
			attr.String("name"),
		),
	)
	require.NoError(t, err)
	return table
}

func TestFragmentOperators(t *testing.T) {
	tests := []struct {
		name string
		pred filter.Predicate
		want string
	}{
		{name: "eq", pred: filter.Where("username", filter.Eq, "alice"), want: "#n1 = :v1"},
		{name: "ne", pred: filter.Where("username", filter.Ne, "alice"), want: "#n1 <> :v1"},
		{name: "gt", pred: filter.Where("age", filter.Gt, int64(18)), want: "#n1 > :v1"},
		{name: "ge", pred: filter.Where("age", filter.Ge, int64(18)), want: "#n1 >= :v1"},
		{name: "lt", pred: filter.Where("age", filter.Lt, int64(18)), want: "#n1 < :v1"},
		{name: "le", pred: filter.Where("age", filter.Le, int64(18)), want: "#n1 <= :v1"},
		{name: "sw", pred: filter.Where("username", filter.Sw, "al"), want: "begins_with(#n1, :v1)"},
		{name: "co", pred: filter.Where("username", filter.Co, "li"), want: "contains(#n1, :v1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(testTable(t))
			got, err := b.FilterProducts([]filter.Product{{tt.pred}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresentOnStringChecksNonEmpty(t *testing.T) {
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{{filter.Present("username")}})
	require.NoError(t, err)
	assert.Equal(t, "(attribute_exists(#n1) AND #n1 <> :v1)", got)

	c := b.Components()
	assert.Equal(t, &types.AttributeValueMemberS{Value: ""}, c.ExpressionAttributeValues[":v1"])
}

func TestPresentOnNonString(t *testing.T) {
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{{filter.Present("age")}})
	require.NoError(t, err)
	assert.Equal(t, "attribute_exists(#n1)", got)
	assert.Nil(t, b.Components().ExpressionAttributeValues)
}

func TestReservedWordsGetUppercasePlaceholders(t *testing.T) {
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{{filter.Where("status", filter.Eq, "active")}})
	require.NoError(t, err)
	assert.Equal(t, "#STATUS = :v1", got)
	assert.Equal(t, "status", b.Components().ExpressionAttributeNames["#STATUS"])
}

func TestNamePlaceholdersReusedValuesFresh(t *testing.T) {
	// The same attribute in a range plus an exclusion must reuse one name
	// placeholder but never a value placeholder.
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{{
		filter.Where("age", filter.Ge, int64(18)),
		filter.Where("age", filter.Ne, int64(42)),
	}})
	require.NoError(t, err)
	assert.Equal(t, "#n1 >= :v1 AND #n1 <> :v2", got)

	c := b.Components()
	assert.Len(t, c.ExpressionAttributeNames, 1)
	assert.Len(t, c.ExpressionAttributeValues, 2)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "18"}, c.ExpressionAttributeValues[":v1"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, c.ExpressionAttributeValues[":v2"])
}

func TestFilterProductsOrCombines(t *testing.T) {
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{
		{filter.Where("username", filter.Eq, "alice"), filter.Where("age", filter.Gt, int64(18))},
		{filter.Where("username", filter.Eq, "bob")},
	})
	require.NoError(t, err)
	assert.Equal(t, "(#n1 = :v1 AND #n2 > :v2) OR (#n1 = :v3)", got)
}

func TestFilterProductsEmptyBranchIsUnconditional(t *testing.T) {
	b := NewBuilder(testTable(t))

	got, err := b.FilterProducts(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	// One empty product makes the whole disjunction true.
	got, err = b.FilterProducts([]filter.Product{
		{filter.Where("username", filter.Eq, "alice")},
		{},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyCondition(t *testing.T) {
	b := NewBuilder(testTable(t))
	sortRange := filter.Where("username", filter.Sw, "al")
	got, err := b.KeyCondition(filter.Where("id", filter.Eq, "alice"), &sortRange)
	require.NoError(t, err)
	assert.Equal(t, "#n1 = :v1 AND begins_with(#n2, :v2)", got)
}

func TestKeyConditionRequiresPartitionEquality(t *testing.T) {
	b := NewBuilder(testTable(t))
	_, err := b.KeyCondition(filter.Where("id", filter.Gt, "alice"), nil)
	assert.ErrorIs(t, err, ierrors.ErrUnsupportedOperator)
}

func TestKeyConditionRejectsNonRangeSortOperators(t *testing.T) {
	b := NewBuilder(testTable(t))
	for _, op := range []filter.Operator{filter.Ne, filter.Co, filter.Pr} {
		sortRange := filter.Where("username", op, "x")
		_, err := b.KeyCondition(filter.Where("id", filter.Eq, "alice"), &sortRange)
		assert.ErrorIs(t, err, ierrors.ErrUnsupportedOperator, "operator %s", op)
	}
}

func TestFragmentUnknownAttribute(t *testing.T) {
	b := NewBuilder(testTable(t))
	_, err := b.FilterProducts([]filter.Product{{filter.Where("ghost", filter.Eq, "x")}})
	assert.ErrorIs(t, err, ierrors.ErrUnknownAttribute)
}

func TestContainsOnStringListEncodesMember(t *testing.T) {
	b := NewBuilder(testTable(t))
	got, err := b.FilterProducts([]filter.Product{{filter.Where("groups", filter.Co, "admins")}})
	require.NoError(t, err)
	assert.Equal(t, "contains(#n1, :v1)", got)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "admins"},
		b.Components().ExpressionAttributeValues[":v1"])
}

func TestEncodeLiteralWidensIntegers(t *testing.T) {
	age := attr.Number("age")

	av, err := EncodeLiteral(age, 18)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "18"}, av)

	av, err = EncodeLiteral(age, int32(18))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "18"}, av)
}

func TestIsReservedWord(t *testing.T) {
	assert.True(t, isReservedWord("status"))
	assert.True(t, isReservedWord("NAME"))
	assert.False(t, isReservedWord("username_prefix"))
}
