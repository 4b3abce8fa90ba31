// Package plan matches normalized filter expressions to the best available
// table index and produces an executable query plan.
//
// A plan is either a set of per-product index queries or a single full
// scan. The choice, and the index picked for each product, is fully
// deterministic for a given catalog and input.
package plan

import (
	"fmt"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/catalog"
	"github.com/theory-cloud/indextheory/pkg/core"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
	"github.com/theory-cloud/indextheory/pkg/filter"
)

// Mode distinguishes the two plan shapes.
type Mode string

const (
	// UsingQueries executes one Query per distinct key condition.
	UsingQueries Mode = "queries"
	// UsingScan executes a single filtered table scan.
	UsingScan Mode = "scan"
)

// Sort is a resolved sort request on a physical attribute.
type Sort struct {
	Attribute  string
	Descending bool
}

// KeyCondition is the key clause of one planned query: the index to hit,
// the partition equality and an optional sort-key range.
type KeyCondition struct {
	SortRange *filter.Predicate
	Index     core.IndexSchema
	Partition filter.Predicate
}

// identity is the grouping key for merging products that share one key
// condition.
func (k KeyCondition) identity() string {
	s := k.Index.Name + "|" + k.Partition.String()
	if k.SortRange != nil {
		s += "|" + k.SortRange.String()
	}
	return s
}

// Query is one planned index query: a key condition plus the residual
// predicates of every product it serves. Residuals from multiple products
// are OR-combined by the request builder.
type Query struct {
	Key       KeyCondition
	Residuals []filter.Product
}

// Plan describes how a filter executes against the store.
type Plan struct {
	Table *catalog.Table
	Sort  *Sort
	// ScanFilter holds the full DNF when Mode is UsingScan; empty means
	// match-all.
	ScanFilter []filter.Product
	Queries    []Query
	Mode       Mode
	// SortInMemory is set when the chosen access path cannot return rows
	// in the requested order, so the caller must sort the page itself.
	SortInMemory bool
}

// Option configures planning.
type Option func(*request)

type request struct {
	sortAttribute string
	active        *filter.Predicate
	maxProducts   int
	sortDesc      bool
}

// WithSort requests ordering by a logical attribute.
func WithSort(logical string, descending bool) Option {
	return func(r *request) {
		r.sortAttribute = logical
		r.sortDesc = descending
	}
}

// WithActivePredicate ANDs an "active-only" predicate into every product.
func WithActivePredicate(pred filter.Predicate) Option {
	return func(r *request) {
		p := pred
		r.active = &p
	}
}

// WithMaxProducts overrides the DNF expansion bound.
func WithMaxProducts(n int) Option {
	return func(r *request) {
		r.maxProducts = n
	}
}

// Build normalizes expr and plans its execution against table.
func Build(table *catalog.Table, expr filter.Expression, opts ...Option) (*Plan, error) {
	req := request{maxProducts: filter.DefaultMaxProducts}
	for _, opt := range opts {
		opt(&req)
	}

	products, err := filter.NormalizeBounded(expr, req.maxProducts)
	if err != nil {
		return nil, err
	}

	resolved := make([]filter.Product, 0, len(products))
	for _, product := range products {
		rp, err := resolveProduct(table, product)
		if err != nil {
			return nil, err
		}
		if req.active != nil {
			ap, err := resolvePredicate(table, *req.active)
			if err != nil {
				return nil, err
			}
			rp = append(rp, ap)
		}
		resolved = append(resolved, rp)
	}
	if len(resolved) == 0 && req.active != nil {
		ap, err := resolvePredicate(table, *req.active)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, filter.Product{ap})
	}

	var sort *Sort
	if req.sortAttribute != "" {
		def, err := table.Resolve(req.sortAttribute)
		if err != nil {
			return nil, err
		}
		if !def.Orderable() {
			return nil, ierrors.NewCapability(ierrors.ErrUnsortableAttribute, req.sortAttribute, "")
		}
		sort = &Sort{Attribute: def.Name(), Descending: req.sortDesc}
	}

	return build(table, resolved, sort)
}

func build(table *catalog.Table, products []filter.Product, sort *Sort) (*Plan, error) {
	// No selective filter at all: scanning is the only access path.
	if len(products) == 0 {
		return scanPlan(table, nil, sort, nil)
	}

	type plannedProduct struct {
		key      KeyCondition
		residual filter.Product
	}
	planned := make([]plannedProduct, 0, len(products))

	for _, product := range products {
		key, residual, reason := selectIndex(table, product, sort)
		if key == nil {
			// One product without an eligible index forces the whole
			// expression onto a scan.
			return scanPlan(table, products, sort, reason)
		}
		planned = append(planned, plannedProduct{key: *key, residual: residual})
	}

	// Merge products that target the identical key condition into one
	// query; their residuals become OR branches of its filter.
	grouped := make(map[string]int)
	queries := make([]Query, 0, len(planned))
	for _, p := range planned {
		id := p.key.identity()
		if i, ok := grouped[id]; ok {
			queries[i].Residuals = append(queries[i].Residuals, p.residual)
			continue
		}
		grouped[id] = len(queries)
		queries = append(queries, Query{Key: p.key, Residuals: []filter.Product{p.residual}})
	}

	if len(queries) > table.MaxQueries() {
		return nil, ierrors.NewCapability(
			fmt.Errorf("%w: %d key conditions, maximum %d", ierrors.ErrTooManyQueries, len(queries), table.MaxQueries()), "", "")
	}

	plan := &Plan{
		Table:   table,
		Mode:    UsingQueries,
		Queries: queries,
		Sort:    sort,
	}
	plan.SortInMemory = sortNeedsMemory(queries, sort)
	return plan, nil
}

func scanPlan(table *catalog.Table, products []filter.Product, sort *Sort, reason error) (*Plan, error) {
	if !table.ScanAllowed() {
		// The reason an index could not serve the filter (for example a
		// too-short prefix) is more actionable than the policy error.
		if reason != nil {
			return nil, reason
		}
		return nil, ierrors.NewCapability(ierrors.ErrScanNotAllowed, "", "")
	}
	return &Plan{
		Table:        table,
		Mode:         UsingScan,
		ScanFilter:   products,
		Sort:         sort,
		SortInMemory: sort != nil,
	}, nil
}

// selectIndex finds the best index for one product. Returns a nil key when
// no index is eligible, with the reason for diagnostics.
func selectIndex(table *catalog.Table, product filter.Product, sort *Sort) (*KeyCondition, filter.Product, error) {
	type candidate struct {
		key   KeyCondition
		used  []filter.Predicate
		score int
	}
	var best *candidate
	var reason error

	for _, idx := range table.AllIndexes() {
		key, used, err := matchIndex(table, idx, product)
		if err != nil {
			if reason == nil {
				reason = err
			}
			continue
		}
		if key == nil {
			continue
		}
		score := 0
		if sort != nil && idx.SortKey == sort.Attribute {
			score += 2
		}
		if idx.IsPrimary() {
			score++
		}
		// Strictly greater keeps declaration order as the final
		// tie-break.
		if best == nil || score > best.score {
			best = &candidate{key: *key, used: used, score: score}
		}
	}

	if best == nil {
		return nil, nil, reason
	}
	return &best.key, product.Without(best.used...), nil
}

// matchIndex checks whether one index can serve a product: a partition-key
// equality (directly, or via a declared prefix of a starts-with predicate)
// plus an optional sort-key range.
func matchIndex(table *catalog.Table, idx core.IndexSchema, product filter.Product) (*KeyCondition, []filter.Predicate, error) {
	for _, pred := range product {
		partition, extraSort, err := partitionClause(table, idx, pred)
		if err != nil {
			return nil, nil, err
		}
		if partition == nil {
			continue
		}

		used := []filter.Predicate{pred}
		key := &KeyCondition{Index: idx, Partition: *partition, SortRange: extraSort}

		if key.SortRange == nil && idx.SortKey != "" {
			if sortPred, ok := findSortRange(product, idx.SortKey, pred); ok {
				key.SortRange = &sortPred
				used = append(used, sortPred)
			}
		}
		return key, used, nil
	}
	return nil, nil, nil
}

// partitionClause derives the partition equality an index can extract from
// one predicate. For a starts-with predicate on an attribute with a
// declared prefix, equality on the stored prefix plus a begins_with range
// on the full value serves the query; values below the prefix length make
// the index ineligible.
func partitionClause(table *catalog.Table, idx core.IndexSchema, pred filter.Predicate) (*filter.Predicate, *filter.Predicate, error) {
	if pred.Op == filter.Eq && pred.Attribute == idx.PartitionKey {
		p := pred
		return &p, nil, nil
	}

	if pred.Op != filter.Sw {
		return nil, nil, nil
	}
	prefix, ok := table.PrefixFor(pred.Attribute)
	if !ok || prefix.Name() != idx.PartitionKey {
		return nil, nil, nil
	}
	value, ok := pred.Value.(string)
	if !ok {
		return nil, nil, nil
	}
	stored, err := prefix.PrefixOf(value)
	if err != nil {
		// Below the minimum selective length: this index cannot serve
		// the predicate.
		return nil, nil, err
	}
	partition := filter.Predicate{Attribute: prefix.Name(), Op: filter.Eq, Value: stored}
	var sortRange *filter.Predicate
	if idx.SortKey == pred.Attribute {
		sr := filter.Predicate{Attribute: pred.Attribute, Op: filter.Sw, Value: value}
		sortRange = &sr
	}
	return &partition, sortRange, nil
}

// findSortRange picks a second predicate on the index sort key usable as a
// key range.
func findSortRange(product filter.Product, sortKey string, partition filter.Predicate) (filter.Predicate, bool) {
	for _, pred := range product {
		if pred == partition || pred.Attribute != sortKey {
			continue
		}
		switch pred.Op {
		case filter.Eq, filter.Gt, filter.Ge, filter.Lt, filter.Le, filter.Sw:
			return pred, true
		}
	}
	return filter.Predicate{}, false
}

func sortNeedsMemory(queries []Query, sort *Sort) bool {
	if sort == nil {
		return false
	}
	// Multiple key conditions produce independently ordered result
	// streams; merging preserves no global order.
	if len(queries) > 1 {
		return true
	}
	return queries[0].Key.Index.SortKey != sort.Attribute
}

// resolveProduct rewrites logical attribute names to physical ones and
// validates operator/type compatibility.
func resolveProduct(table *catalog.Table, product filter.Product) (filter.Product, error) {
	out := make(filter.Product, 0, len(product))
	for _, pred := range product {
		rp, err := resolvePredicate(table, pred)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, nil
}

func resolvePredicate(table *catalog.Table, pred filter.Predicate) (filter.Predicate, error) {
	def, err := table.Resolve(pred.Attribute)
	if err != nil {
		return filter.Predicate{}, err
	}
	if err := checkOperator(def, pred); err != nil {
		return filter.Predicate{}, err
	}
	pred.Attribute = def.Name()
	return pred, nil
}

// checkOperator rejects operator/type combinations the store would
// mis-evaluate instead of letting them through silently.
func checkOperator(def attr.Definition, pred filter.Predicate) error {
	switch pred.Op {
	case filter.Gt, filter.Ge, filter.Lt, filter.Le:
		if !def.Orderable() {
			return ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
		}
	case filter.Sw:
		if def.Kind() != attr.KindString {
			return ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
		}
	case filter.Co:
		if def.Kind() != attr.KindString && def.Kind() != attr.KindStringList {
			return ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
		}
	case filter.Eq, filter.Ne, filter.Pr:
		// Valid for every kind.
	default:
		return ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
	}
	return nil
}
