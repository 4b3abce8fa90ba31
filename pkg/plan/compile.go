package plan

import (
	"github.com/theory-cloud/indextheory/internal/expr"
	"github.com/theory-cloud/indextheory/pkg/core"
)

// Compile lowers the plan to wire-ready requests, one per key condition
// (or a single scan). Placeholder maps are per request.
func (p *Plan) Compile() ([]core.CompiledRequest, error) {
	if p.Mode == UsingScan {
		req, err := p.compileScan()
		if err != nil {
			return nil, err
		}
		return []core.CompiledRequest{req}, nil
	}

	out := make([]core.CompiledRequest, 0, len(p.Queries))
	for _, q := range p.Queries {
		req, err := p.compileQuery(q)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (p *Plan) compileQuery(q Query) (core.CompiledRequest, error) {
	b := expr.NewBuilder(p.Table)

	keyExpr, err := b.KeyCondition(q.Key.Partition, q.Key.SortRange)
	if err != nil {
		return core.CompiledRequest{}, err
	}
	filterExpr, err := b.FilterProducts(q.Residuals)
	if err != nil {
		return core.CompiledRequest{}, err
	}

	components := b.Components()
	req := core.CompiledRequest{
		TableName:                 p.Table.Name(),
		Operation:                 core.OperationQuery,
		IndexName:                 q.Key.Index.Name, // empty for the primary key
		KeyConditionExpression:    keyExpr,
		FilterExpression:          filterExpr,
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
	}

	// The store can only order a single stream, and only along the
	// queried index's sort key.
	if p.Sort != nil && !p.SortInMemory {
		forward := !p.Sort.Descending
		req.ScanIndexForward = &forward
	}
	return req, nil
}

func (p *Plan) compileScan() (core.CompiledRequest, error) {
	b := expr.NewBuilder(p.Table)
	filterExpr, err := b.FilterProducts(p.ScanFilter)
	if err != nil {
		return core.CompiledRequest{}, err
	}
	components := b.Components()
	return core.CompiledRequest{
		TableName:                 p.Table.Name(),
		Operation:                 core.OperationScan,
		FilterExpression:          filterExpr,
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
	}, nil
}
