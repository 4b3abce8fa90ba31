// Package attr provides typed attribute descriptors for table schemas.
//
// An Attribute[T] knows how to encode a Go value to a DynamoDB
// AttributeValue, decode it back, and compare two values when the type has a
// total order. Catalogs hold attributes behind the Definition interface;
// entity code keeps the generic form for compile-time checked access.
package attr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// Kind identifies the wire encoding of an attribute.
type Kind string

const (
	KindString     Kind = "S"
	KindNumber     Kind = "N"
	KindBool       Kind = "BOOL"
	KindStringList Kind = "L"
)

// Definition is the type-erased view of an attribute used by catalogs and
// the planner.
type Definition interface {
	Name() string
	Kind() Kind

	// Orderable reports whether values of this attribute have a total
	// order. Lists do not.
	Orderable() bool

	// EncodeAny converts a raw value to its wire form. The concrete type
	// must match the attribute's kind.
	EncodeAny(value any) (types.AttributeValue, error)

	// DecodeAny converts a wire value back to the attribute's Go type.
	DecodeAny(av types.AttributeValue) (any, error)

	// CompareAny orders two raw values. Fails for unorderable kinds.
	CompareAny(a, b any) (int, error)
}

// Attribute is a typed column descriptor.
type Attribute[T any] struct {
	encode  func(T) (types.AttributeValue, error)
	decode  func(types.AttributeValue) (T, error)
	compare func(a, b T) int // nil when unorderable
	name    string
	kind    Kind
}

// Name returns the physical attribute name.
func (a Attribute[T]) Name() string { return a.name }

// Kind returns the wire encoding kind.
func (a Attribute[T]) Kind() Kind { return a.kind }

// Orderable reports whether the attribute supports range comparison.
func (a Attribute[T]) Orderable() bool { return a.compare != nil }

// Encode converts a typed value to its wire form.
func (a Attribute[T]) Encode(value T) (types.AttributeValue, error) {
	return a.encode(value)
}

// Decode converts a wire value back to the typed form.
func (a Attribute[T]) Decode(av types.AttributeValue) (T, error) {
	return a.decode(av)
}

// Compare orders two typed values. Returns ErrUnsortableAttribute for
// unorderable kinds.
func (a Attribute[T]) Compare(x, y T) (int, error) {
	if a.compare == nil {
		return 0, ierrors.NewCapability(ierrors.ErrUnsortableAttribute, a.name, "")
	}
	return a.compare(x, y), nil
}

// EncodeAny implements Definition.
func (a Attribute[T]) EncodeAny(value any) (types.AttributeValue, error) {
	typed, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("%w: attribute %s expects %T, got %T",
			ierrors.ErrInvalidAttributeValue, a.name, typed, value)
	}
	return a.encode(typed)
}

// DecodeAny implements Definition.
func (a Attribute[T]) DecodeAny(av types.AttributeValue) (any, error) {
	return a.decode(av)
}

// CompareAny implements Definition.
func (a Attribute[T]) CompareAny(x, y any) (int, error) {
	tx, ok := x.(T)
	if !ok {
		return 0, fmt.Errorf("%w: attribute %s: %T", ierrors.ErrInvalidAttributeValue, a.name, x)
	}
	ty, ok := y.(T)
	if !ok {
		return 0, fmt.Errorf("%w: attribute %s: %T", ierrors.ErrInvalidAttributeValue, a.name, y)
	}
	return a.Compare(tx, ty)
}

// String declares a string attribute.
func String(name string) Attribute[string] {
	return Attribute[string]{
		name: name,
		kind: KindString,
		encode: func(v string) (types.AttributeValue, error) {
			return &types.AttributeValueMemberS{Value: v}, nil
		},
		decode: func(av types.AttributeValue) (string, error) {
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return "", fmt.Errorf("%w: expected S for %s, got %T", ierrors.ErrInvalidAttributeValue, name, av)
			}
			return s.Value, nil
		},
		compare: strings.Compare,
	}
}

// Number declares an integer attribute.
func Number(name string) Attribute[int64] {
	return Attribute[int64]{
		name: name,
		kind: KindNumber,
		encode: func(v int64) (types.AttributeValue, error) {
			return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
		},
		decode: func(av types.AttributeValue) (int64, error) {
			n, ok := av.(*types.AttributeValueMemberN)
			if !ok {
				return 0, fmt.Errorf("%w: expected N for %s, got %T", ierrors.ErrInvalidAttributeValue, name, av)
			}
			parsed, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: attribute %s: %v", ierrors.ErrInvalidAttributeValue, name, err)
			}
			return parsed, nil
		},
		compare: func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
	}
}

// Bool declares a boolean attribute. Booleans have no range order.
func Bool(name string) Attribute[bool] {
	return Attribute[bool]{
		name: name,
		kind: KindBool,
		encode: func(v bool) (types.AttributeValue, error) {
			return &types.AttributeValueMemberBOOL{Value: v}, nil
		},
		decode: func(av types.AttributeValue) (bool, error) {
			b, ok := av.(*types.AttributeValueMemberBOOL)
			if !ok {
				return false, fmt.Errorf("%w: expected BOOL for %s, got %T", ierrors.ErrInvalidAttributeValue, name, av)
			}
			return b.Value, nil
		},
	}
}

// StringList declares a list-of-strings attribute. Lists are unorderable.
func StringList(name string) Attribute[[]string] {
	return Attribute[[]string]{
		name: name,
		kind: KindStringList,
		encode: func(v []string) (types.AttributeValue, error) {
			list, err := attributevalue.MarshalList(v)
			if err != nil {
				return nil, fmt.Errorf("marshal %s: %w", name, err)
			}
			return &types.AttributeValueMemberL{Value: list}, nil
		},
		decode: func(av types.AttributeValue) ([]string, error) {
			l, ok := av.(*types.AttributeValueMemberL)
			if !ok {
				return nil, fmt.Errorf("%w: expected L for %s, got %T", ierrors.ErrInvalidAttributeValue, name, av)
			}
			var out []string
			if err := attributevalue.UnmarshalList(l.Value, &out); err != nil {
				return nil, fmt.Errorf("%w: attribute %s: %v", ierrors.ErrInvalidAttributeValue, name, err)
			}
			return out, nil
		},
	}
}

// Enum declares a string attribute restricted to a fixed value set.
func Enum(name string, allowed ...string) Attribute[string] {
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[v] = true
	}
	base := String(name)
	encode := base.encode
	base.encode = func(v string) (types.AttributeValue, error) {
		if !set[v] {
			return nil, fmt.Errorf("%w: %q is not a member of enum %s", ierrors.ErrInvalidAttributeValue, v, name)
		}
		return encode(v)
	}
	return base
}

// Composite declares a string attribute whose value is assembled from
// ordered parts with a separator, for single-table key overloading.
type Composite struct {
	Attribute[string]
	sep string
}

// NewComposite declares a composite string attribute.
func NewComposite(name, sep string) Composite {
	return Composite{Attribute: String(name), sep: sep}
}

// Join assembles the composite value from its parts.
func (c Composite) Join(parts ...string) string {
	return strings.Join(parts, c.sep)
}

// Split breaks a stored composite value back into parts.
func (c Composite) Split(value string) []string {
	return strings.Split(value, c.sep)
}
