package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersYAML = `
table: users
key:
  partition: pk
  sort: sk
attributes:
  - name: pk
    type: string
  - name: sk
    type: string
  - name: status
    type: string
  - name: age
    type: number
  - name: username
    type: unique
    tenantScoped: true
  - name: email
    type: unique
    caseInsensitive: true
  - name: username_prefix
    type: prefix
    source: username
    length: 3
indexes:
  - name: by-status
    partition: status
    sort: age
  - name: by-prefix
    partition: username_prefix
    sort: username
aliases:
  userName: username
policy:
  maxQueries: 2
  allowScan: false
`

func TestLoadDeclaration(t *testing.T) {
	table, err := Load(strings.NewReader(usersYAML))
	require.NoError(t, err)

	assert.Equal(t, "users", table.Name())
	assert.Equal(t, "pk", table.Key().PartitionKey)
	assert.Equal(t, "sk", table.Key().SortKey)

	u, ok := table.Unique("username")
	require.True(t, ok)
	assert.True(t, u.IsTenantScoped())

	email, ok := table.Unique("email")
	require.True(t, ok)
	assert.Equal(t, "email#alice@x.com", email.UniquenessValue("", "Alice@X.com"))

	p, ok := table.Prefix("username_prefix")
	require.True(t, ok)
	assert.Equal(t, "username", p.Source().Name())

	// Undeclared index type defaults to GSI.
	idx, ok := table.IndexByName("by-status")
	require.True(t, ok)
	assert.Equal(t, "GSI", idx.Type)

	def, err := table.Resolve("userName")
	require.NoError(t, err)
	assert.Equal(t, "username", def.Name())

	assert.Equal(t, 2, table.MaxQueries())
	assert.False(t, table.ScanAllowed())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("table: users\nbanana: true\n"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownAttributeType(t *testing.T) {
	doc := `
table: users
key:
  partition: pk
attributes:
  - name: pk
    type: widget
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadPrefixRequiresUniqueSource(t *testing.T) {
	doc := `
table: users
key:
  partition: pk
attributes:
  - name: pk
    type: string
  - name: pk_prefix
    type: prefix
    source: pk
    length: 3
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a unique attribute")
}

func TestLoadPrefixRequiresPositiveLength(t *testing.T) {
	doc := `
table: users
key:
  partition: pk
attributes:
  - name: pk
    type: string
  - name: username
    type: unique
  - name: username_prefix
    type: prefix
    source: username
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length must be positive")
}
