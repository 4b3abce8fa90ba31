// Package expr compiles predicates into DynamoDB expression strings with
// parameterized #name and :value placeholder maps.
package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/catalog"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
	"github.com/theory-cloud/indextheory/pkg/filter"
)

// Builder accumulates one request's expression fragments and placeholder
// maps. One builder per compiled request; value placeholders are never
// reused, so the same attribute may appear in a range clause and an
// exclusion clause without colliding.
type Builder struct {
	table        *catalog.Table
	names        map[string]string
	values       map[string]types.AttributeValue
	nameCounter  int
	valueCounter int
}

// NewBuilder creates a builder bound to a table catalog for value encoding.
func NewBuilder(table *catalog.Table) *Builder {
	return &Builder{
		table:  table,
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// Components are the accumulated placeholder maps.
type Components struct {
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
}

// Components returns the placeholder maps built so far. Nil maps are
// returned when empty so they can be assigned to SDK inputs directly.
func (b *Builder) Components() Components {
	c := Components{}
	if len(b.names) > 0 {
		c.ExpressionAttributeNames = b.names
	}
	if len(b.values) > 0 {
		c.ExpressionAttributeValues = b.values
	}
	return c
}

// KeyCondition compiles a partition equality plus optional sort-key range
// into a KeyConditionExpression.
func (b *Builder) KeyCondition(partition filter.Predicate, sortRange *filter.Predicate) (string, error) {
	if partition.Op != filter.Eq {
		return "", ierrors.NewCapability(ierrors.ErrUnsupportedOperator, partition.Attribute, string(partition.Op))
	}
	clause, err := b.fragment(partition)
	if err != nil {
		return "", err
	}
	if sortRange == nil {
		return clause, nil
	}
	sortClause, err := b.keyRangeFragment(*sortRange)
	if err != nil {
		return "", err
	}
	return clause + " AND " + sortClause, nil
}

// keyRangeFragment compiles a sort-key clause. Key conditions accept a
// narrower operator set than filters: no <>, contains or presence.
func (b *Builder) keyRangeFragment(pred filter.Predicate) (string, error) {
	switch pred.Op {
	case filter.Eq, filter.Gt, filter.Ge, filter.Lt, filter.Le, filter.Sw:
		return b.fragment(pred)
	default:
		return "", ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
	}
}

// FilterProducts compiles residual products into one FilterExpression.
// Each product becomes a parenthesized conjunction; products are
// OR-combined. Empty products are dropped; an all-empty set compiles to "".
func (b *Builder) FilterProducts(products []filter.Product) (string, error) {
	branches := make([]string, 0, len(products))
	for _, product := range products {
		if len(product) == 0 {
			// One unconditional branch makes the whole filter
			// unconditional.
			return "", nil
		}
		clauses := make([]string, 0, len(product))
		for _, pred := range product {
			clause, err := b.fragment(pred)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		branches = append(branches, "("+strings.Join(clauses, " AND ")+")")
	}
	if len(branches) == 0 {
		return "", nil
	}
	if len(branches) == 1 {
		branch := branches[0]
		return branch[1 : len(branch)-1], nil
	}
	return strings.Join(branches, " OR "), nil
}

// fragment compiles one predicate to its store-level expression fragment.
// Ends-with never reaches this layer; the normalizer rejects it.
func (b *Builder) fragment(pred filter.Predicate) (string, error) {
	def, ok := b.table.Attribute(pred.Attribute)
	if !ok {
		return "", ierrors.NewCapability(ierrors.ErrUnknownAttribute, pred.Attribute, "")
	}
	nameRef := b.nameRef(pred.Attribute)

	switch pred.Op {
	case filter.Eq:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", nameRef, valueRef), nil
	case filter.Ne:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <> %s", nameRef, valueRef), nil
	case filter.Gt:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s > %s", nameRef, valueRef), nil
	case filter.Ge:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s >= %s", nameRef, valueRef), nil
	case filter.Lt:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s < %s", nameRef, valueRef), nil
	case filter.Le:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <= %s", nameRef, valueRef), nil
	case filter.Sw:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", nameRef, valueRef), nil
	case filter.Co:
		valueRef, err := b.valueRef(def, pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", nameRef, valueRef), nil
	case filter.Pr:
		// Present means the attribute exists and, for strings, is
		// non-empty. Absence checks are rejected upstream.
		if def.Kind() == attr.KindString {
			b.valueCounter++
			emptyRef := fmt.Sprintf(":v%d", b.valueCounter)
			b.values[emptyRef] = &types.AttributeValueMemberS{Value: ""}
			return fmt.Sprintf("(attribute_exists(%s) AND %s <> %s)", nameRef, nameRef, emptyRef), nil
		}
		return fmt.Sprintf("attribute_exists(%s)", nameRef), nil
	default:
		return "", ierrors.NewCapability(ierrors.ErrUnsupportedOperator, pred.Attribute, string(pred.Op))
	}
}

// nameRef returns the placeholder for an attribute name, reusing one per
// distinct name. Reserved words keep their uppercased form for readable
// wire expressions.
func (b *Builder) nameRef(name string) string {
	for placeholder, existing := range b.names {
		if existing == name {
			return placeholder
		}
	}
	var placeholder string
	if isReservedWord(name) {
		placeholder = "#" + strings.ToUpper(name)
	} else {
		b.nameCounter++
		placeholder = fmt.Sprintf("#n%d", b.nameCounter)
	}
	b.names[placeholder] = name
	return placeholder
}

// valueRef encodes a literal and returns a fresh value placeholder.
func (b *Builder) valueRef(def attr.Definition, value any) (string, error) {
	av, err := EncodeLiteral(def, value)
	if err != nil {
		return "", err
	}
	b.valueCounter++
	placeholder := fmt.Sprintf(":v%d", b.valueCounter)
	b.values[placeholder] = av
	return placeholder, nil
}

// EncodeLiteral converts a predicate literal to wire form using the
// attribute's definition, widening untyped integer literals. A contains
// predicate on a string list compares against a string member.
func EncodeLiteral(def attr.Definition, value any) (types.AttributeValue, error) {
	switch v := value.(type) {
	case int:
		return def.EncodeAny(int64(v))
	case int32:
		return def.EncodeAny(int64(v))
	case string:
		if def.Kind() == attr.KindStringList {
			return &types.AttributeValueMemberS{Value: v}, nil
		}
		return def.EncodeAny(v)
	default:
		return def.EncodeAny(value)
	}
}
