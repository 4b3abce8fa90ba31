package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

func TestUniquenessValue(t *testing.T) {
	tests := []struct {
		name   string
		unique Unique
		tenant string
		raw    string
		want   string
	}{
		{
			name:   "global",
			unique: NewUnique("email"),
			tenant: "acme",
			raw:    "alice@x.com",
			want:   "email#alice@x.com",
		},
		{
			name:   "tenant scoped",
			unique: NewUnique("username", TenantScoped()),
			tenant: "acme",
			raw:    "alice",
			want:   "acme#username#alice",
		},
		{
			name:   "case insensitive",
			unique: NewUnique("email", CaseInsensitive()),
			tenant: "",
			raw:    "Alice@X.com",
			want:   "email#alice@x.com",
		},
		{
			name:   "tenant scoped and folded",
			unique: NewUnique("username", TenantScoped(), CaseInsensitive()),
			tenant: "acme",
			raw:    "Alice",
			want:   "acme#username#alice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unique.UniquenessValue(tt.tenant, tt.raw))
		})
	}
}

func TestUniqueTenantScopedFlag(t *testing.T) {
	assert.False(t, NewUnique("email").IsTenantScoped())
	assert.True(t, NewUnique("email", TenantScoped()).IsTenantScoped())
}

func TestPrefixOf(t *testing.T) {
	username := NewUnique("username")
	p := NewPrefix("username_prefix", username, 3)

	assert.Equal(t, "username", p.Source().Name())
	assert.Equal(t, 3, p.Length())

	stored, err := p.PrefixOf("alice")
	require.NoError(t, err)
	assert.Equal(t, "ali", stored)

	stored, err = p.PrefixOf("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", stored)
}

func TestPrefixOfTooShort(t *testing.T) {
	p := NewPrefix("username_prefix", NewUnique("username"), 3)

	_, err := p.PrefixOf("al")
	assert.ErrorIs(t, err, ierrors.ErrPrefixTooShort)
	assert.True(t, ierrors.IsCapability(err))
}

func TestPrefixOfMultibyte(t *testing.T) {
	p := NewPrefix("name_prefix", NewUnique("name"), 2)

	stored, err := p.PrefixOf("日本語")
	require.NoError(t, err)
	assert.Equal(t, "日本", stored)
}
