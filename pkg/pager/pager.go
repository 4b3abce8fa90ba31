package pager

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/indextheory/internal/numutil"
	"github.com/theory-cloud/indextheory/pkg/catalog"
	"github.com/theory-cloud/indextheory/pkg/core"
)

// Pager executes a compiled request repeatedly until a caller's page
// budget is filled or the store is exhausted.
//
// DynamoDB applies a request's filter expression after its own page-size
// limit, so one underlying page may contribute fewer rows than requested.
// The pager keeps fetching with the store's continuation key and stops
// exactly at the budget; when it stops mid-page the returned cursor is
// derived from the last item actually kept so skipped rows are not lost.
type Pager struct {
	client core.StoreAPI
	table  *catalog.Table
}

// New creates a pager over one table.
func New(client core.StoreAPI, table *catalog.Table) *Pager {
	return &Pager{client: client, table: table}
}

// Page is one page of post-filter results plus the cursor to resume from.
// An empty cursor means the result set is exhausted.
type Page struct {
	Cursor string
	Items  []core.Item
}

// Page fetches up to limit items for req, resuming from cursorIn. A limit
// of zero or less means "all remaining items".
func (p *Pager) Page(ctx context.Context, req core.CompiledRequest, limit int, cursorIn string) (*Page, error) {
	startKey, _, err := DecodeCursor(cursorIn)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	req.ExclusiveStartKey = startKey

	index, ok := p.table.IndexByName(req.IndexName)
	if !ok {
		return nil, fmt.Errorf("pager: request targets undeclared index %q on table %s", req.IndexName, p.table.Name())
	}
	keyAttrs := core.KeyAttributes(index, p.table.Key())

	var kept []core.Item
	for {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(kept)
		}

		fetch := req
		// Without a filter the store's limit is exact, so ask for just
		// the remaining budget. With a filter the limit bounds raw rows,
		// not matches; let the store fill its pages.
		if limit > 0 && !req.HasFilter() {
			fetch.Limit = aws.Int32(numutil.ClampIntToInt32(remaining))
		}

		items, nativeKey, err := p.fetch(ctx, fetch)
		if err != nil {
			return nil, err
		}

		take := len(items)
		truncated := false
		if limit > 0 && take > remaining {
			take = remaining
			truncated = true
		}
		kept = append(kept, items[:take]...)

		if truncated {
			// Items beyond the budget came back in this page; resuming
			// from the store's native key would skip them.
			cursor, err := p.cursorFromItem(kept[len(kept)-1], keyAttrs, req.IndexName)
			if err != nil {
				return nil, err
			}
			return &Page{Items: kept, Cursor: cursor}, nil
		}

		if len(nativeKey) == 0 {
			return &Page{Items: kept}, nil
		}

		if limit > 0 && len(kept) == limit {
			// Budget met exactly at a page boundary: every fetched item
			// was kept, so the native continuation key loses nothing.
			cursor, err := EncodeCursor(nativeKey, req.IndexName)
			if err != nil {
				return nil, err
			}
			return &Page{Items: kept, Cursor: cursor}, nil
		}

		req.ExclusiveStartKey = nativeKey
	}
}

// All fetches every remaining item, following continuation keys until the
// store reports exhaustion.
func (p *Pager) All(ctx context.Context, req core.CompiledRequest) ([]core.Item, error) {
	page, err := p.Page(ctx, req, 0, "")
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Count returns the number of matching items without materializing them,
// using the store's COUNT select across all pages.
func (p *Pager) Count(ctx context.Context, req core.CompiledRequest) (int64, error) {
	req.Select = string(types.SelectCount)
	var total int64
	for {
		count, nativeKey, err := p.count(ctx, req)
		if err != nil {
			return 0, err
		}
		total += count
		if len(nativeKey) == 0 {
			return total, nil
		}
		req.ExclusiveStartKey = nativeKey
	}
}

func (p *Pager) fetch(ctx context.Context, req core.CompiledRequest) ([]core.Item, core.Item, error) {
	switch req.Operation {
	case core.OperationQuery:
		out, err := p.client.Query(ctx, buildQueryInput(&req))
		if err != nil {
			return nil, nil, fmt.Errorf("execute query: %w", err)
		}
		return out.Items, out.LastEvaluatedKey, nil
	case core.OperationScan:
		out, err := p.client.Scan(ctx, buildScanInput(&req))
		if err != nil {
			return nil, nil, fmt.Errorf("execute scan: %w", err)
		}
		return out.Items, out.LastEvaluatedKey, nil
	default:
		return nil, nil, fmt.Errorf("pager: unknown operation %q", req.Operation)
	}
}

func (p *Pager) count(ctx context.Context, req core.CompiledRequest) (int64, core.Item, error) {
	switch req.Operation {
	case core.OperationQuery:
		out, err := p.client.Query(ctx, buildQueryInput(&req))
		if err != nil {
			return 0, nil, fmt.Errorf("execute count query: %w", err)
		}
		return int64(out.Count), out.LastEvaluatedKey, nil
	case core.OperationScan:
		out, err := p.client.Scan(ctx, buildScanInput(&req))
		if err != nil {
			return 0, nil, fmt.Errorf("execute count scan: %w", err)
		}
		return int64(out.Count), out.LastEvaluatedKey, nil
	default:
		return 0, nil, fmt.Errorf("pager: unknown operation %q", req.Operation)
	}
}

// cursorFromItem extracts the index's key attributes from the last kept
// item and encodes them as the resumption point.
func (p *Pager) cursorFromItem(item core.Item, keyAttrs []string, indexName string) (string, error) {
	key := make(core.Item, len(keyAttrs))
	for _, name := range keyAttrs {
		av, ok := item[name]
		if !ok {
			return "", fmt.Errorf("pager: item is missing key attribute %q", name)
		}
		key[name] = av
	}
	return EncodeCursor(key, indexName)
}

func buildQueryInput(req *core.CompiledRequest) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(req.TableName),
		ExpressionAttributeNames:  req.ExpressionAttributeNames,
		ExpressionAttributeValues: req.ExpressionAttributeValues,
	}
	if req.KeyConditionExpression != "" {
		input.KeyConditionExpression = aws.String(req.KeyConditionExpression)
	}
	if req.FilterExpression != "" {
		input.FilterExpression = aws.String(req.FilterExpression)
	}
	if req.IndexName != "" {
		input.IndexName = aws.String(req.IndexName)
	}
	if req.Limit != nil {
		input.Limit = req.Limit
	}
	if len(req.ExclusiveStartKey) > 0 {
		input.ExclusiveStartKey = req.ExclusiveStartKey
	}
	if req.ScanIndexForward != nil {
		input.ScanIndexForward = req.ScanIndexForward
	}
	if req.ConsistentRead != nil {
		input.ConsistentRead = req.ConsistentRead
	}
	if req.Select != "" {
		input.Select = types.Select(req.Select)
	}
	return input
}

func buildScanInput(req *core.CompiledRequest) *dynamodb.ScanInput {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(req.TableName),
		ExpressionAttributeNames:  req.ExpressionAttributeNames,
		ExpressionAttributeValues: req.ExpressionAttributeValues,
	}
	if req.FilterExpression != "" {
		input.FilterExpression = aws.String(req.FilterExpression)
	}
	if req.Limit != nil {
		input.Limit = req.Limit
	}
	if len(req.ExclusiveStartKey) > 0 {
		input.ExclusiveStartKey = req.ExclusiveStartKey
	}
	if req.Select != "" {
		input.Select = types.Select(req.Select)
	}
	return input
}
