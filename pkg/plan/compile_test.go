package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/indextheory/pkg/core"
	"github.com/theory-cloud/indextheory/pkg/filter"
)

func TestCompileQueryRequest(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.And(
		filter.Where("status", filter.Eq, "active"),
		filter.Where("age", filter.Ge, int64(18)),
		filter.Where("city", filter.Eq, "paris"),
	))
	require.NoError(t, err)

	reqs, err := p.Compile()
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	assert.Equal(t, "users", req.TableName)
	assert.Equal(t, core.OperationQuery, req.Operation)
	assert.Equal(t, "by-status-age", req.IndexName)
	// "status" is reserved, age is not.
	assert.Equal(t, "#STATUS = :v1 AND #n1 >= :v2", req.KeyConditionExpression)
	assert.Equal(t, "#n2 = :v3", req.FilterExpression)
	assert.Equal(t, "city", req.ExpressionAttributeNames["#n2"])
	assert.Nil(t, req.ScanIndexForward)
}

func TestCompilePrimaryKeyRequestHasNoIndexName(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("id", filter.Eq, "alice"))
	require.NoError(t, err)

	reqs, err := p.Compile()
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].IndexName)
	assert.Equal(t, "#n1 = :v1", reqs[0].KeyConditionExpression)
	assert.Empty(t, reqs[0].FilterExpression)
}

func TestCompileSetsScanIndexForward(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table,
		filter.Where("status", filter.Eq, "active"),
		WithSort("age", true),
	)
	require.NoError(t, err)
	require.False(t, p.SortInMemory)

	reqs, err := p.Compile()
	require.NoError(t, err)
	require.NotNil(t, reqs[0].ScanIndexForward)
	assert.False(t, *reqs[0].ScanIndexForward)
}

func TestCompileScanRequest(t *testing.T) {
	table := usersTable(t)

	p, err := Build(table, filter.Where("city", filter.Eq, "paris"))
	require.NoError(t, err)
	require.Equal(t, UsingScan, p.Mode)

	reqs, err := p.Compile()
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, core.OperationScan, reqs[0].Operation)
	assert.Empty(t, reqs[0].KeyConditionExpression)
	assert.Equal(t, "#n1 = :v1", reqs[0].FilterExpression)
}

func TestCompileEachRequestHasOwnPlaceholders(t *testing.T) {
	table := usersTable(t)

	expr := filter.Or(
		filter.Where("status", filter.Eq, "a"),
		filter.Where("status", filter.Eq, "b"),
	)
	p, err := Build(table, expr)
	require.NoError(t, err)

	reqs, err := p.Compile()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	// Both start their counters fresh.
	for _, req := range reqs {
		assert.Contains(t, req.ExpressionAttributeValues, ":v1")
		assert.Len(t, req.ExpressionAttributeValues, 1)
	}
}
