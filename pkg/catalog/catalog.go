// Package catalog declares the queryable surface of a table: its key
// schema, secondary indexes, attribute definitions and the logical names
// entity code filters and sorts by.
//
// A Table is immutable once built. Construct one per physical table at
// startup and inject it wherever planning happens; there is no global
// registry.
package catalog

import (
	"fmt"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/core"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// DefaultMaxQueries caps how many distinct key conditions one plan may
// fan out to. Each key condition is a separate billed Query call.
const DefaultMaxQueries = 4

// Table is the immutable catalog for one physical table.
type Table struct {
	attributes map[string]attr.Definition
	aliases    map[string]string
	uniques    map[string]attr.Unique
	prefixes   map[string]attr.Prefix
	name       string
	indexes    []core.IndexSchema
	key        core.KeySchema
	maxQueries int
	allowScan  bool
}

// Option configures a Table under construction.
type Option func(*Table)

// WithKey sets the table's primary key schema.
func WithKey(partition, sort string) Option {
	return func(t *Table) {
		t.key = core.KeySchema{PartitionKey: partition, SortKey: sort}
	}
}

// WithAttributes declares typed attributes.
func WithAttributes(defs ...attr.Definition) Option {
	return func(t *Table) {
		for _, d := range defs {
			t.attributes[d.Name()] = d
		}
	}
}

// WithUnique declares a uniquely-constrained attribute.
func WithUnique(uniques ...attr.Unique) Option {
	return func(t *Table) {
		for _, u := range uniques {
			t.attributes[u.Name()] = u
			t.uniques[u.Name()] = u
		}
	}
}

// WithPrefix declares a prefix attribute derived from a unique attribute.
func WithPrefix(prefixes ...attr.Prefix) Option {
	return func(t *Table) {
		for _, p := range prefixes {
			t.attributes[p.Name()] = p
			t.prefixes[p.Name()] = p
		}
	}
}

// WithIndex declares a secondary index.
func WithIndex(indexes ...core.IndexSchema) Option {
	return func(t *Table) {
		t.indexes = append(t.indexes, indexes...)
	}
}

// WithAlias maps a logical filter/sort name to a physical attribute.
func WithAlias(logical, physical string) Option {
	return func(t *Table) {
		t.aliases[logical] = physical
	}
}

// WithMaxQueries overrides the per-plan key condition cap.
func WithMaxQueries(n int) Option {
	return func(t *Table) {
		t.maxQueries = n
	}
}

// WithScanPolicy controls whether the planner may fall back to a full scan.
func WithScanPolicy(allow bool) Option {
	return func(t *Table) {
		t.allowScan = allow
	}
}

// New builds and validates a table catalog.
func New(name string, opts ...Option) (*Table, error) {
	t := &Table{
		name:       name,
		attributes: make(map[string]attr.Definition),
		aliases:    make(map[string]string),
		uniques:    make(map[string]attr.Unique),
		prefixes:   make(map[string]attr.Prefix),
		maxQueries: DefaultMaxQueries,
		allowScan:  true,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.name == "" {
		return nil, fmt.Errorf("catalog: table name is required")
	}
	if t.key.PartitionKey == "" {
		return nil, fmt.Errorf("catalog: table %s has no partition key", t.name)
	}
	if _, ok := t.attributes[t.key.PartitionKey]; !ok {
		return nil, fmt.Errorf("catalog: table %s: partition key %q is not a declared attribute", t.name, t.key.PartitionKey)
	}
	if t.key.SortKey != "" {
		if _, ok := t.attributes[t.key.SortKey]; !ok {
			return nil, fmt.Errorf("catalog: table %s: sort key %q is not a declared attribute", t.name, t.key.SortKey)
		}
	}
	for _, idx := range t.indexes {
		if idx.Name == "" {
			return nil, fmt.Errorf("catalog: table %s: secondary index needs a name", t.name)
		}
		if _, ok := t.attributes[idx.PartitionKey]; !ok {
			return nil, fmt.Errorf("catalog: table %s index %s: partition key %q is not a declared attribute", t.name, idx.Name, idx.PartitionKey)
		}
		if idx.SortKey != "" {
			if _, ok := t.attributes[idx.SortKey]; !ok {
				return nil, fmt.Errorf("catalog: table %s index %s: sort key %q is not a declared attribute", t.name, idx.Name, idx.SortKey)
			}
		}
	}
	for logical, physical := range t.aliases {
		if _, ok := t.attributes[physical]; !ok {
			return nil, fmt.Errorf("catalog: table %s: alias %q targets undeclared attribute %q", t.name, logical, physical)
		}
	}
	return t, nil
}

// Name returns the physical table name.
func (t *Table) Name() string { return t.name }

// Key returns the primary key schema.
func (t *Table) Key() core.KeySchema { return t.key }

// AllIndexes returns the primary key as an index plus every secondary
// index, in declaration order. Declaration order is the planner's final
// tie-break, so it is stable.
func (t *Table) AllIndexes() []core.IndexSchema {
	out := make([]core.IndexSchema, 0, len(t.indexes)+1)
	out = append(out, core.IndexSchema{
		Type:         core.IndexTypePrimary,
		PartitionKey: t.key.PartitionKey,
		SortKey:      t.key.SortKey,
	})
	out = append(out, t.indexes...)
	return out
}

// IndexByName returns a declared index. The primary key schema is returned
// for the empty name.
func (t *Table) IndexByName(name string) (core.IndexSchema, bool) {
	for _, idx := range t.AllIndexes() {
		if idx.Name == name {
			return idx, true
		}
	}
	return core.IndexSchema{}, false
}

// Attribute returns the definition for a physical attribute name.
func (t *Table) Attribute(name string) (attr.Definition, bool) {
	def, ok := t.attributes[name]
	return def, ok
}

// Resolve maps a logical filter/sort name to its attribute definition,
// following aliases. Unknown names are a capability error.
func (t *Table) Resolve(logical string) (attr.Definition, error) {
	name := logical
	if physical, ok := t.aliases[logical]; ok {
		name = physical
	}
	def, ok := t.attributes[name]
	if !ok {
		return nil, ierrors.NewCapability(ierrors.ErrUnknownAttribute, logical, "")
	}
	return def, nil
}

// ResolveName maps a logical name to the physical attribute name.
func (t *Table) ResolveName(logical string) (string, error) {
	def, err := t.Resolve(logical)
	if err != nil {
		return "", err
	}
	return def.Name(), nil
}

// Unique returns the unique descriptor for an attribute, if constrained.
func (t *Table) Unique(name string) (attr.Unique, bool) {
	u, ok := t.uniques[name]
	return u, ok
}

// Uniques returns every uniquely-constrained attribute, keyed by name.
func (t *Table) Uniques() map[string]attr.Unique {
	out := make(map[string]attr.Unique, len(t.uniques))
	for k, v := range t.uniques {
		out[k] = v
	}
	return out
}

// PrefixFor returns the prefix attribute derived from the named source
// attribute, if one is declared.
func (t *Table) PrefixFor(source string) (attr.Prefix, bool) {
	for _, p := range t.prefixes {
		if p.Source().Name() == source {
			return p, true
		}
	}
	return attr.Prefix{}, false
}

// Prefix returns the prefix descriptor for an attribute name.
func (t *Table) Prefix(name string) (attr.Prefix, bool) {
	p, ok := t.prefixes[name]
	return p, ok
}

// MaxQueries returns the per-plan key condition cap.
func (t *Table) MaxQueries() int { return t.maxQueries }

// ScanAllowed reports whether full-scan fallback is permitted.
func (t *Table) ScanAllowed() bool { return t.allowScan }
