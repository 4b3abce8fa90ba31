package pager

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/indextheory/pkg/core"
	"github.com/theory-cloud/indextheory/pkg/plan"
)

// ExecutePlan runs a query plan and returns one page of results.
//
// Single-query plans in store order stream page by page. Plans that fan
// out to several key conditions, or that need client-side ordering, cannot
// be resumed inside the store: those are fetched fully, deduplicated by
// primary key, ordered, and paged in memory with the same opaque cursor
// contract.
func (p *Pager) ExecutePlan(ctx context.Context, pl *plan.Plan, limit int, cursorIn string) (*Page, error) {
	reqs, err := pl.Compile()
	if err != nil {
		return nil, err
	}

	if len(reqs) == 1 && !pl.SortInMemory {
		return p.Page(ctx, reqs[0], limit, cursorIn)
	}

	merged, err := p.fetchMerged(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if pl.Sort != nil {
		if err := p.sortItems(merged, pl); err != nil {
			return nil, err
		}
	}
	return p.sliceMerged(merged, limit, cursorIn)
}

// fetchMerged drains every request and deduplicates by the table's
// primary key. A row matching two products on different indexes appears
// once.
func (p *Pager) fetchMerged(ctx context.Context, reqs []core.CompiledRequest) ([]core.Item, error) {
	var merged []core.Item
	seen := make(map[string]bool)
	for _, req := range reqs {
		items, err := p.All(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			id, err := p.primaryKeyIdentity(item)
			if err != nil {
				return nil, err
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, item)
		}
	}
	return merged, nil
}

func (p *Pager) primaryKeyIdentity(item core.Item) (string, error) {
	key := p.table.Key()
	var b strings.Builder
	for _, name := range []string{key.PartitionKey, key.SortKey} {
		if name == "" {
			continue
		}
		av, ok := item[name]
		if !ok {
			return "", fmt.Errorf("pager: item is missing key attribute %q", name)
		}
		b.WriteString(scalarString(av))
		b.WriteByte(0)
	}
	return b.String(), nil
}

func scalarString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value)
	default:
		return fmt.Sprintf("%T", av)
	}
}

// sortItems orders the merged set by the plan's sort attribute using the
// attribute's declared comparator. Items missing the attribute sort last.
func (p *Pager) sortItems(items []core.Item, pl *plan.Plan) error {
	def, ok := p.table.Attribute(pl.Sort.Attribute)
	if !ok {
		return fmt.Errorf("pager: sort attribute %q is not declared on table %s", pl.Sort.Attribute, p.table.Name())
	}

	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		avI, okI := items[i][pl.Sort.Attribute]
		avJ, okJ := items[j][pl.Sort.Attribute]
		if !okI || !okJ {
			return okI && !okJ
		}
		valI, err := def.DecodeAny(avI)
		if err != nil {
			sortErr = err
			return false
		}
		valJ, err := def.DecodeAny(avJ)
		if err != nil {
			sortErr = err
			return false
		}
		cmp, err := def.CompareAny(valI, valJ)
		if err != nil {
			sortErr = err
			return false
		}
		if pl.Sort.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
	return sortErr
}

// sliceMerged applies cursor resumption and the page budget to a fully
// merged result set. The cursor is the primary key of the last returned
// item; resumption skips up to and including it.
func (p *Pager) sliceMerged(items []core.Item, limit int, cursorIn string) (*Page, error) {
	start := 0
	if cursorIn != "" {
		cursorKey, _, err := DecodeCursor(cursorIn)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		wanted, err := p.primaryKeyIdentity(cursorKey)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			id, err := p.primaryKeyIdentity(item)
			if err != nil {
				return nil, err
			}
			if id == wanted {
				start = i + 1
				break
			}
		}
	}

	rest := items[start:]
	if limit <= 0 || len(rest) <= limit {
		return &Page{Items: rest}, nil
	}

	kept := rest[:limit]
	key := p.table.Key()
	last := kept[len(kept)-1]
	cursorKey := core.Item{key.PartitionKey: last[key.PartitionKey]}
	if key.SortKey != "" {
		cursorKey[key.SortKey] = last[key.SortKey]
	}
	cursor, err := EncodeCursor(cursorKey, "")
	if err != nil {
		return nil, err
	}
	return &Page{Items: kept, Cursor: cursor}, nil
}
