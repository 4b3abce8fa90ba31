package attr

import (
	"strings"

	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// Unique wraps a string attribute with a uniqueness-value mapping. The
// uniqueness value is what keys the shadow item for this attribute:
// optionally tenant-prefixed so the same raw value may exist in different
// tenants.
type Unique struct {
	Attribute[string]
	tenantScoped bool
	fold         bool
}

// UniqueOption configures a unique attribute.
type UniqueOption func(*Unique)

// TenantScoped prefixes the uniqueness value with the tenant id, making the
// constraint per-tenant instead of global.
func TenantScoped() UniqueOption {
	return func(u *Unique) { u.tenantScoped = true }
}

// CaseInsensitive folds the raw value to lower case before deriving the
// uniqueness value, so "Alice" and "alice" collide.
func CaseInsensitive() UniqueOption {
	return func(u *Unique) { u.fold = true }
}

// NewUnique declares a uniquely-constrained string attribute.
func NewUnique(name string, opts ...UniqueOption) Unique {
	u := Unique{Attribute: String(name)}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

// TenantScopedUnique reports whether the constraint is per-tenant.
func (u Unique) IsTenantScoped() bool { return u.tenantScoped }

// UniquenessValue maps a raw value to the partition key of its shadow item.
func (u Unique) UniquenessValue(tenant, raw string) string {
	v := raw
	if u.fold {
		v = strings.ToLower(v)
	}
	if u.tenantScoped {
		return tenant + "#" + u.Name() + "#" + v
	}
	return u.Name() + "#" + v
}

// Prefix derives a bounded-length prefix of a unique attribute's value.
// Equality on the prefix plus a sort-key range on the full value gives
// "starts-with" queries an index to land on.
type Prefix struct {
	Attribute[string]
	source Unique
	length int
}

// NewPrefix declares a prefix attribute over source with the given length.
// Filter values shorter than length cannot select this index.
func NewPrefix(name string, source Unique, length int) Prefix {
	return Prefix{Attribute: String(name), source: source, length: length}
}

// Source returns the unique attribute this prefix derives from.
func (p Prefix) Source() Unique { return p.source }

// Length returns the minimum selective prefix length.
func (p Prefix) Length() int { return p.length }

// PrefixOf returns the stored prefix for a full value. The full value must
// be at least Length runes long; shorter filter values are a capability
// error at planning time.
func (p Prefix) PrefixOf(value string) (string, error) {
	runes := []rune(value)
	if len(runes) < p.length {
		return "", ierrors.NewCapability(ierrors.ErrPrefixTooShort, p.Name(), "")
	}
	return string(runes[:p.length]), nil
}
