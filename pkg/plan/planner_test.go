package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/catalog"
	"github.com/theory-cloud/indextheory/pkg/core"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
	"github.com/theory-cloud/indextheory/pkg/filter"
)

func usersTable(t *testing.T, opts ...catalog.Option) *catalog.Table {
	t.Helper()
	username := attr.NewUnique("username")
	base := []catalog.Option{
		catalog.WithKey("id", ""),
		catalog.WithAttributes(
			attr.String("id"),
			attr.String("status"),
			attr.Number("age"),
			attr.String("city"),
			attr.StringList("groups"),
		),
		catalog.WithUnique(username),
		catalog.WithPrefix(attr.NewPrefix("username_prefix", username, 3)),
		catalog.WithIndex(
			core.IndexSchema{Name: "by-status-age", Type: core.IndexTypeGSI, PartitionKey: "status", SortKey: "age"},
			core.IndexSchema{Name: "by-status-city", Type: core.IndexTypeGSI, PartitionKey: "status", SortKey: "city"},
			core.IndexSchema{Name: "by-prefix", Type: core.IndexTypeGSI, PartitionKey: "username_prefix", SortKey: "username"},
		),
		catalog.WithAlias("userName", "username"),
	}
	table, err := catalog.New("users", append(base, opts...)...)
	require.NoError(t, err)
	return table
}

func TestBuildPartitionEqualityPicksIndex(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("status", filter.Eq, "active"))
	require.NoError(t, err)

	assert.Equal(t, UsingQueries, p.Mode)
	require.Len(t, p.Queries, 1)
	q := p.Queries[0]
	assert.Equal(t, "by-status-age", q.Key.Index.Name)
	assert.Equal(t, filter.Eq, q.Key.Partition.Op)
	// The key predicate is consumed; nothing residual remains.
	require.Len(t, q.Residuals, 1)
	assert.Empty(t, q.Residuals[0])
}

func TestBuildPrimaryKeyBeatsSecondary(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.And(
		filter.Where("id", filter.Eq, "alice"),
		filter.Where("status", filter.Eq, "active"),
	))
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	q := p.Queries[0]
	assert.True(t, q.Key.Index.IsPrimary())
	// The status predicate stays as a residual filter.
	require.Len(t, q.Residuals, 1)
	_, ok := q.Residuals[0].Find("status")
	assert.True(t, ok)
}

func TestBuildSortMatchBeatsPrimary(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table,
		filter.And(
			filter.Where("id", filter.Eq, "alice"),
			filter.Where("status", filter.Eq, "active"),
		),
		WithSort("age", false),
	)
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	assert.Equal(t, "by-status-age", p.Queries[0].Key.Index.Name)
	assert.False(t, p.SortInMemory)
}

func TestBuildDeclarationOrderBreaksTies(t *testing.T) {
	table := usersTable(t)

	// Both status indexes are eligible with equal scores; the first
	// declared wins, deterministically.
	for i := 0; i < 10; i++ {
		p, err := Build(table, filter.Where("status", filter.Eq, "active"))
		require.NoError(t, err)
		require.Len(t, p.Queries, 1)
		assert.Equal(t, "by-status-age", p.Queries[0].Key.Index.Name)
	}
}

func TestBuildSortRangeOnIndexSortKey(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.And(
		filter.Where("status", filter.Eq, "active"),
		filter.Where("age", filter.Ge, int64(18)),
	))
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	q := p.Queries[0]
	assert.Equal(t, "by-status-age", q.Key.Index.Name)
	require.NotNil(t, q.Key.SortRange)
	assert.Equal(t, filter.Ge, q.Key.SortRange.Op)
	assert.Empty(t, q.Residuals[0])
}

func TestBuildStartsWithUsesPrefixIndex(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("userName", filter.Sw, "alice"))
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	q := p.Queries[0]
	assert.Equal(t, "by-prefix", q.Key.Index.Name)
	assert.Equal(t, filter.Predicate{Attribute: "username_prefix", Op: filter.Eq, Value: "ali"}, q.Key.Partition)
	require.NotNil(t, q.Key.SortRange)
	assert.Equal(t, filter.Sw, q.Key.SortRange.Op)
	assert.Equal(t, "alice", q.Key.SortRange.Value)
}

func TestBuildShortPrefixFallsBackToScan(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("username", filter.Sw, "al"))
	require.NoError(t, err)
	assert.Equal(t, UsingScan, p.Mode)
	require.Len(t, p.ScanFilter, 1)
}

func TestBuildShortPrefixWithoutScanSurfacesReason(t *testing.T) {
	table := usersTable(t, catalog.WithScanPolicy(false))

	_, err := Build(table, filter.Where("username", filter.Sw, "al"))
	assert.ErrorIs(t, err, ierrors.ErrPrefixTooShort)
}

func TestBuildNoEligibleIndexScans(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("city", filter.Eq, "paris"))
	require.NoError(t, err)
	assert.Equal(t, UsingScan, p.Mode)
}

func TestBuildScanDisallowed(t *testing.T) {
	table := usersTable(t, catalog.WithScanPolicy(false))

	_, err := Build(table, filter.Where("city", filter.Eq, "paris"))
	assert.ErrorIs(t, err, ierrors.ErrScanNotAllowed)
}

func TestBuildEmptyFilterScans(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, nil)
	require.NoError(t, err)
	assert.Equal(t, UsingScan, p.Mode)
	assert.Empty(t, p.ScanFilter)
}

func TestBuildMergesProductsWithSameKeyCondition(t *testing.T) {
	table := usersTable(t)

	// Both branches key on status=active; they become one query with two
	// OR-combined residual branches.
	expr := filter.Or(
		filter.And(filter.Where("status", filter.Eq, "active"), filter.Where("groups", filter.Co, "admins")),
		filter.And(filter.Where("status", filter.Eq, "active"), filter.Where("city", filter.Eq, "paris")),
	)
	p, err := Build(table, expr)
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	assert.Len(t, p.Queries[0].Residuals, 2)
}

func TestBuildTooManyQueries(t *testing.T) {
	table := usersTable(t, catalog.WithMaxQueries(2))

	expr := filter.Or(
		filter.Where("status", filter.Eq, "a"),
		filter.Where("status", filter.Eq, "b"),
		filter.Where("status", filter.Eq, "c"),
	)
	_, err := Build(table, expr)
	require.ErrorIs(t, err, ierrors.ErrTooManyQueries)
	assert.True(t, ierrors.IsCapability(err))
}

func TestBuildMixedEligibilityForcesScan(t *testing.T) {
	table := usersTable(t)

	// One branch has a key condition, the other does not; the whole
	// disjunction must scan to avoid missing rows.
	expr := filter.Or(
		filter.Where("status", filter.Eq, "active"),
		filter.Where("city", filter.Eq, "paris"),
	)
	p, err := Build(table, expr)
	require.NoError(t, err)
	assert.Equal(t, UsingScan, p.Mode)
	assert.Len(t, p.ScanFilter, 2)
}

func TestBuildSortValidation(t *testing.T) {
	table := usersTable(t)

	_, err := Build(table, filter.Where("status", filter.Eq, "a"), WithSort("groups", false))
	assert.ErrorIs(t, err, ierrors.ErrUnsortableAttribute)

	_, err = Build(table, filter.Where("status", filter.Eq, "a"), WithSort("ghost", false))
	assert.ErrorIs(t, err, ierrors.ErrUnknownAttribute)
}

func TestBuildSortInMemory(t *testing.T) {
	table := usersTable(t)

	// Single query, sort attribute not the index sort key.
	p, err := Build(table, filter.Where("status", filter.Eq, "active"), WithSort("city", false))
	require.NoError(t, err)
	// by-status-city matches the sort and wins.
	assert.Equal(t, "by-status-city", p.Queries[0].Key.Index.Name)
	assert.False(t, p.SortInMemory)

	// Multiple key conditions can never stream in order.
	expr := filter.Or(
		filter.Where("status", filter.Eq, "a"),
		filter.Where("status", filter.Eq, "b"),
	)
	p, err = Build(table, expr, WithSort("age", false))
	require.NoError(t, err)
	require.Len(t, p.Queries, 2)
	assert.True(t, p.SortInMemory)

	// Scan plans always sort client-side.
	p, err = Build(table, nil, WithSort("age", true))
	require.NoError(t, err)
	assert.True(t, p.SortInMemory)
}

func TestBuildActivePredicate(t *testing.T) {
	table := usersTable(t)

	active := filter.Where("status", filter.Eq, "active")
	p, err := Build(table, filter.Where("id", filter.Eq, "alice"), WithActivePredicate(active))
	require.NoError(t, err)

	require.Len(t, p.Queries, 1)
	_, ok := p.Queries[0].Residuals[0].Find("status")
	assert.True(t, ok)

	// With no filter at all the active predicate still applies, and can
	// even carry the key condition itself.
	p, err = Build(table, nil, WithActivePredicate(active))
	require.NoError(t, err)
	require.Equal(t, UsingQueries, p.Mode)
	require.Len(t, p.Queries, 1)
	assert.Equal(t, "by-status-age", p.Queries[0].Key.Index.Name)
	assert.Empty(t, p.Queries[0].Residuals[0])
}

func TestBuildOperatorTypeChecks(t *testing.T) {
	table := usersTable(t)

	tests := []struct {
		name string
		expr filter.Expression
	}{
		{name: "range on list", expr: filter.Where("groups", filter.Gt, "x")},
		{name: "starts-with on number", expr: filter.Where("age", filter.Sw, "1")},
		{name: "contains on number", expr: filter.Where("age", filter.Co, "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(table, tt.expr)
			assert.ErrorIs(t, err, ierrors.ErrUnsupportedOperator)
		})
	}
}

func TestBuildResolvesAliases(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("userName", filter.Eq, "alice"))
	require.NoError(t, err)
	// Physical name flows into the plan.
	require.Equal(t, UsingScan, p.Mode)
	pred, ok := p.ScanFilter[0].Find("username")
	require.True(t, ok)
	assert.Equal(t, "alice", pred.Value)
}
