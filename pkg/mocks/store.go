// Package mocks provides mock implementations of the store client for
// testing planner, pager and uniqueness-engine code without AWS calls.
package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/mock"
)

// MockStoreAPI is a testify mock of the DynamoDB surface the library uses.
//
// Example usage:
//
//	client := new(mocks.MockStoreAPI)
//	client.On("Query", mock.Anything, mock.Anything, mock.Anything).
//		Return(&dynamodb.QueryOutput{}, nil)
type MockStoreAPI struct {
	mock.Mock
}

// GetItem mocks the DynamoDB GetItem operation.
func (m *MockStoreAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.GetItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.GetItemOutput")
	}
	return out, args.Error(1)
}

// PutItem mocks the DynamoDB PutItem operation.
func (m *MockStoreAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.PutItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.PutItemOutput")
	}
	return out, args.Error(1)
}

// DeleteItem mocks the DynamoDB DeleteItem operation.
func (m *MockStoreAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.DeleteItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.DeleteItemOutput")
	}
	return out, args.Error(1)
}

// Query mocks the DynamoDB Query operation.
func (m *MockStoreAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.QueryOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.QueryOutput")
	}
	return out, args.Error(1)
}

// Scan mocks the DynamoDB Scan operation.
func (m *MockStoreAPI) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.ScanOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.ScanOutput")
	}
	return out, args.Error(1)
}

// TransactWriteItems mocks the DynamoDB TransactWriteItems operation.
func (m *MockStoreAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	out, ok := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.TransactWriteItemsOutput")
	}
	return out, args.Error(1)
}
