// Package core defines the shared interfaces and types for indextheory
package core

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is one physical row as stored in DynamoDB.
type Item = map[string]types.AttributeValue

// StoreAPI is the subset of the DynamoDB client this module drives.
// Collaborators supply an implementation (usually *dynamodb.Client); tests
// supply fakes.
type StoreAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// KeySchema describes a table or index key pair.
type KeySchema struct {
	PartitionKey string
	SortKey      string // optional
}

// Index types as declared in a catalog.
const (
	IndexTypePrimary = "PRIMARY"
	IndexTypeGSI     = "GSI"
	IndexTypeLSI     = "LSI"
)

// IndexSchema describes one index available for query planning.
type IndexSchema struct {
	Name         string
	Type         string // "PRIMARY", "GSI" or "LSI"
	PartitionKey string
	SortKey      string
}

// IsPrimary reports whether the index is the table's own key schema.
func (s IndexSchema) IsPrimary() bool {
	return s.Type == IndexTypePrimary
}

// Operation kinds for a compiled request.
const (
	OperationQuery = "Query"
	OperationScan  = "Scan"
)

// CompiledRequest is a wire-ready Query or Scan, produced by the request
// builder and executed by the pagination engine.
type CompiledRequest struct {
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
	ExclusiveStartKey         Item
	ScanIndexForward          *bool
	ConsistentRead            *bool
	Limit                     *int32
	TableName                 string
	Operation                 string
	IndexName                 string
	KeyConditionExpression    string
	FilterExpression          string
	Select                    string
}

// HasFilter reports whether the request carries a server-side filter
// expression. The pagination engine only trusts native continuation keys
// when there is no filter.
func (r *CompiledRequest) HasFilter() bool {
	return r.FilterExpression != ""
}

// KeyAttributes returns the physical attribute names that make up the
// continuation key for this request: the index key plus, on a secondary
// index, the table key DynamoDB folds into LastEvaluatedKey.
func KeyAttributes(index IndexSchema, table KeySchema) []string {
	names := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(index.PartitionKey)
	add(index.SortKey)
	add(table.PartitionKey)
	add(table.SortKey)
	return names
}
