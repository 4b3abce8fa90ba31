// Package pager drives repeated Query/Scan calls to fill a caller's page
// budget despite server-side filtering, and issues opaque resumable
// cursors.
package pager

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/indextheory/pkg/core"
)

// Cursor is the decoded pagination state: the key attributes of the last
// item returned, tagged with the index they belong to.
type Cursor struct {
	Key   map[string]cursorValue `json:"key"`
	Index string                 `json:"index,omitempty"`
}

// cursorValue is the JSON form of one key attribute. Key attributes are
// scalars: string, number or binary.
type cursorValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
	B []byte  `json:"B,omitempty"`
}

// EncodeCursor encodes a continuation key into an opaque base64 string.
// An empty key encodes to "" meaning exhaustion.
func EncodeCursor(key core.Item, indexName string) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	cursor := Cursor{Index: indexName, Key: make(map[string]cursorValue, len(key))}
	for name, av := range key {
		cv, err := toCursorValue(av)
		if err != nil {
			return "", fmt.Errorf("encode cursor attribute %s: %w", name, err)
		}
		cursor.Key[name] = cv
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor decodes a cursor back into a continuation key. An empty
// string means "start from the beginning" and decodes to a nil key.
func DecodeCursor(encoded string) (core.Item, string, error) {
	if encoded == "" {
		return nil, "", nil
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	key := make(core.Item, len(cursor.Key))
	for name, cv := range cursor.Key {
		av, err := fromCursorValue(cv)
		if err != nil {
			return nil, "", fmt.Errorf("decode cursor attribute %s: %w", name, err)
		}
		key[name] = av
	}
	return key, cursor.Index, nil
}

func toCursorValue(av types.AttributeValue) (cursorValue, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		s := v.Value
		return cursorValue{S: &s}, nil
	case *types.AttributeValueMemberN:
		n := v.Value
		return cursorValue{N: &n}, nil
	case *types.AttributeValueMemberB:
		return cursorValue{B: v.Value}, nil
	default:
		return cursorValue{}, fmt.Errorf("unsupported key attribute type %T", av)
	}
}

func fromCursorValue(cv cursorValue) (types.AttributeValue, error) {
	switch {
	case cv.S != nil:
		return &types.AttributeValueMemberS{Value: *cv.S}, nil
	case cv.N != nil:
		return &types.AttributeValueMemberN{Value: *cv.N}, nil
	case cv.B != nil:
		return &types.AttributeValueMemberB{Value: cv.B}, nil
	default:
		return nil, fmt.Errorf("empty cursor value")
	}
}
