// Package unique emulates multi-attribute uniqueness constraints and
// optimistic concurrency over a store without native unique indexes.
//
// Each entity is stored as one main item keyed by its primary id plus one
// shadow item per non-null uniquely-constrained attribute value. Shadows
// carry a full copy of the entity's data, so a strongly-consistent lookup
// by any constrained attribute is two point reads. All mutations go
// through atomic multi-item transactions guarded by a version counter.
package unique

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/indextheory/pkg/catalog"
	"github.com/theory-cloud/indextheory/pkg/core"
	ierrors "github.com/theory-cloud/indextheory/pkg/errors"
)

// VersionAttribute is the optimistic-concurrency counter carried on every
// main and shadow item. Zero at creation, incremented by one per update.
const VersionAttribute = "version"

// DefaultRetryAttempts bounds how many times an update or delete redrives
// its read-modify-write cycle after losing a version race.
const DefaultRetryAttempts = 3

// Shadow items record which main item they belong to, so lookups by a
// constrained attribute can resolve back to the entity's primary key.
const (
	shadowEntityPK = "entity_pk"
	shadowEntitySK = "entity_sk"
)

// Engine maintains the shadow-item set for one table.
type Engine struct {
	client   core.StoreAPI
	table    *catalog.Table
	attempts int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryAttempts overrides the version-conflict retry bound.
func WithRetryAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// New creates an engine over one table.
func New(client core.StoreAPI, table *catalog.Table, opts ...Option) *Engine {
	e := &Engine{client: client, table: table, attempts: DefaultRetryAttempts}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const (
	opPutMain      = "put main item"
	opPutShadow    = "put shadow item"
	opDeleteMain   = "delete main item"
	opDeleteShadow = "delete shadow item"
)

type guardKind int

const (
	// guardAbsent conditions on the target key not existing. A failure is
	// a real conflict with another entity, never retried.
	guardAbsent guardKind = iota
	// guardVersion conditions on the observed version still being current.
	// A failure means a concurrent writer won; the cycle is redriven.
	guardVersion
)

// txStep pairs one transaction item with enough context to classify a
// cancellation reason at its index.
type txStep struct {
	operation string
	attribute string
	item      types.TransactWriteItem
	guard     guardKind
}

// Create writes the main item and one shadow per non-null constrained
// attribute in a single transaction, conditioned on none of the target
// keys existing. The version counter starts at zero.
func (e *Engine) Create(ctx context.Context, tenant string, item core.Item) error {
	key := e.table.Key()
	if _, ok := item[key.PartitionKey]; !ok {
		return &ierrors.SchemaError{Err: ierrors.ErrMissingAttribute, Table: e.table.Name(), Attribute: key.PartitionKey}
	}
	if key.SortKey != "" {
		if _, ok := item[key.SortKey]; !ok {
			return &ierrors.SchemaError{Err: ierrors.ErrMissingAttribute, Table: e.table.Name(), Attribute: key.SortKey}
		}
	}

	common := cloneItem(item)
	common[VersionAttribute] = &types.AttributeValueMemberN{Value: "0"}

	steps := []txStep{{
		operation: opPutMain,
		guard:     guardAbsent,
		item: types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(e.table.Name()),
			Item:                     common,
			ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
			ExpressionAttributeNames: map[string]string{"#pk": key.PartitionKey},
		}},
	}}

	values, err := e.uniqueValues(tenant, common)
	if err != nil {
		return err
	}
	for _, uv := range values {
		steps = append(steps, txStep{
			operation: opPutShadow,
			attribute: uv.attribute,
			guard:     guardAbsent,
			item: types.TransactWriteItem{Put: &types.Put{
				TableName:                aws.String(e.table.Name()),
				Item:                     e.shadowItem(common, uv.key),
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": key.PartitionKey},
			}},
		})
	}

	return e.execute(ctx, steps)
}

// Update redrives a read-modify-write cycle: read the current main item
// with strong consistency, apply the caller's mutation, bump the version,
// and rewrite main plus shadows atomically conditioned on the observed
// version. Losing the version race retries up to the configured bound.
// The returned item is the state that was written.
func (e *Engine) Update(ctx context.Context, tenant string, key core.Item, apply func(core.Item) (core.Item, error)) (core.Item, error) {
	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		current, err := e.Lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		observed, err := Version(current)
		if err != nil {
			return nil, &ierrors.SchemaError{Err: err, Table: e.table.Name(), Attribute: VersionAttribute}
		}

		next, err := apply(cloneItem(current))
		if err != nil {
			return nil, err
		}
		// The mutation may not move the item to another key.
		for name, av := range key {
			next[name] = av
		}
		next[VersionAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(observed+1, 10)}

		steps, err := e.updateSteps(tenant, current, next, observed)
		if err != nil {
			return nil, err
		}

		err = e.execute(ctx, steps)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ierrors.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update after %d attempts: %w", e.attempts, lastErr)
}

// updateSteps diffs the constrained attributes between the stored and the
// next state. Unchanged values rewrite their shadow to propagate the new
// data; changed values delete the old shadow and insert a fresh one;
// cleared values just delete.
func (e *Engine) updateSteps(tenant string, current, next core.Item, observed int64) ([]txStep, error) {
	pk := e.table.Key().PartitionKey

	steps := []txStep{{
		operation: opPutMain,
		guard:     guardVersion,
		item: types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(e.table.Name()),
			Item:                      next,
			ConditionExpression:       aws.String("#v = :v"),
			ExpressionAttributeNames:  map[string]string{"#v": VersionAttribute},
			ExpressionAttributeValues: versionValue(observed),
		}},
	}}

	oldValues, err := e.uniqueValues(tenant, current)
	if err != nil {
		return nil, err
	}
	newValues, err := e.uniqueValues(tenant, next)
	if err != nil {
		return nil, err
	}
	oldByAttr := make(map[string]shadowRef, len(oldValues))
	for _, uv := range oldValues {
		oldByAttr[uv.attribute] = uv
	}

	seen := make(map[string]bool, len(newValues))
	for _, uv := range newValues {
		seen[uv.attribute] = true
		old, had := oldByAttr[uv.attribute]

		if had && old.key == uv.key {
			steps = append(steps, txStep{
				operation: opPutShadow,
				attribute: uv.attribute,
				guard:     guardVersion,
				item: types.TransactWriteItem{Put: &types.Put{
					TableName:                 aws.String(e.table.Name()),
					Item:                      e.shadowItem(next, uv.key),
					ConditionExpression:       aws.String("#v = :v"),
					ExpressionAttributeNames:  map[string]string{"#v": VersionAttribute},
					ExpressionAttributeValues: versionValue(observed),
				}},
			})
			continue
		}
		if had {
			steps = append(steps, e.deleteShadowStep(old, observed))
		}
		steps = append(steps, txStep{
			operation: opPutShadow,
			attribute: uv.attribute,
			guard:     guardAbsent,
			item: types.TransactWriteItem{Put: &types.Put{
				TableName:                aws.String(e.table.Name()),
				Item:                     e.shadowItem(next, uv.key),
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": pk},
			}},
		})
	}
	for _, old := range oldValues {
		if !seen[old.attribute] {
			steps = append(steps, e.deleteShadowStep(old, observed))
		}
	}
	return steps, nil
}

// Delete reads the main item to discover its live shadows, then deletes
// main plus shadows in one transaction conditioned on the observed
// version, retrying lost races like Update.
func (e *Engine) Delete(ctx context.Context, tenant string, key core.Item) error {
	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		current, err := e.Lookup(ctx, key)
		if err != nil {
			return err
		}
		observed, err := Version(current)
		if err != nil {
			return &ierrors.SchemaError{Err: err, Table: e.table.Name(), Attribute: VersionAttribute}
		}

		steps := []txStep{{
			operation: opDeleteMain,
			guard:     guardVersion,
			item: types.TransactWriteItem{Delete: &types.Delete{
				TableName:                 aws.String(e.table.Name()),
				Key:                       cloneItem(key),
				ConditionExpression:       aws.String("#v = :v"),
				ExpressionAttributeNames:  map[string]string{"#v": VersionAttribute},
				ExpressionAttributeValues: versionValue(observed),
			}},
		}}
		values, err := e.uniqueValues(tenant, current)
		if err != nil {
			return err
		}
		for _, uv := range values {
			steps = append(steps, e.deleteShadowStep(uv, observed))
		}

		err = e.execute(ctx, steps)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ierrors.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("delete after %d attempts: %w", e.attempts, lastErr)
}

// Lookup fetches the main item by primary key with strong consistency.
func (e *Engine) Lookup(ctx context.Context, key core.Item) (core.Item, error) {
	out, err := e.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(e.table.Name()),
		Key:            cloneItem(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ierrors.ErrItemNotFound
	}
	return out.Item, nil
}

// LookupBy resolves an entity through one of its constrained attributes:
// read the shadow to learn the primary key, then read the main item. Both
// reads are strongly consistent.
func (e *Engine) LookupBy(ctx context.Context, tenant, attribute, value string) (core.Item, error) {
	physical, err := e.table.ResolveName(attribute)
	if err != nil {
		return nil, err
	}
	u, ok := e.table.Unique(physical)
	if !ok {
		return nil, ierrors.NewCapability(ierrors.ErrUnknownAttribute, attribute, "")
	}

	shadowKey := e.keyFor(u.UniquenessValue(tenant, value))
	out, err := e.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(e.table.Name()),
		Key:            shadowKey,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get shadow item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ierrors.ErrItemNotFound
	}

	mainKey, err := e.entityKeyFromShadow(out.Item)
	if err != nil {
		return nil, err
	}
	return e.Lookup(ctx, mainKey)
}

// execute runs the transaction and classifies a cancellation into the
// domain error for the step whose condition tripped. Anything that is not
// a conditional-check failure is a transport error, propagated unchanged.
func (e *Engine) execute(ctx context.Context, steps []txStep) error {
	items := make([]types.TransactWriteItem, len(steps))
	for i, s := range steps {
		items[i] = s.item
	}
	_, err := e.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(steps) {
				continue
			}
			step := steps[i]
			if step.guard == guardVersion {
				return &ierrors.TransactionError{
					Err:            ierrors.ErrVersionConflict,
					Operation:      step.operation,
					Attribute:      step.attribute,
					OperationIndex: i,
				}
			}
			cause := ierrors.ErrDuplicateValue
			if step.operation == opPutMain {
				cause = ierrors.ErrIDExists
			}
			return &ierrors.TransactionError{
				Err:            cause,
				Operation:      step.operation,
				Attribute:      step.attribute,
				OperationIndex: i,
			}
		}
	}
	return fmt.Errorf("transact write: %w", err)
}

// shadowRef is one live constrained value: the attribute it enforces and
// the uniqueness value keying its shadow item.
type shadowRef struct {
	attribute string
	key       string
}

// uniqueValues extracts the non-null constrained values from an item, in
// attribute-name order so transaction layouts are deterministic.
func (e *Engine) uniqueValues(tenant string, item core.Item) ([]shadowRef, error) {
	uniques := e.table.Uniques()
	names := make([]string, 0, len(uniques))
	for name := range uniques {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]shadowRef, 0, len(names))
	for _, name := range names {
		av, ok := item[name]
		if !ok {
			continue
		}
		sv, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, &ierrors.SchemaError{Err: ierrors.ErrInvalidAttributeValue, Table: e.table.Name(), Attribute: name}
		}
		if sv.Value == "" {
			continue
		}
		u := uniques[name]
		out = append(out, shadowRef{
			attribute: name,
			key:       u.UniquenessValue(tenant, sv.Value),
		})
	}
	return out, nil
}

// shadowItem copies the common item onto the shadow's key and records the
// main item's primary key for resolution.
func (e *Engine) shadowItem(common core.Item, uniquenessValue string) core.Item {
	key := e.table.Key()
	shadow := cloneItem(common)

	shadow[shadowEntityPK] = common[key.PartitionKey]
	if key.SortKey != "" {
		shadow[shadowEntitySK] = common[key.SortKey]
	}

	shadow[key.PartitionKey] = &types.AttributeValueMemberS{Value: uniquenessValue}
	if key.SortKey != "" {
		shadow[key.SortKey] = &types.AttributeValueMemberS{Value: uniquenessValue}
	}
	return shadow
}

// keyFor builds the primary key of a shadow item.
func (e *Engine) keyFor(uniquenessValue string) core.Item {
	key := e.table.Key()
	out := core.Item{key.PartitionKey: &types.AttributeValueMemberS{Value: uniquenessValue}}
	if key.SortKey != "" {
		out[key.SortKey] = &types.AttributeValueMemberS{Value: uniquenessValue}
	}
	return out
}

func (e *Engine) entityKeyFromShadow(shadow core.Item) (core.Item, error) {
	key := e.table.Key()
	pk, ok := shadow[shadowEntityPK]
	if !ok {
		return nil, &ierrors.SchemaError{Err: ierrors.ErrMissingAttribute, Table: e.table.Name(), Attribute: shadowEntityPK}
	}
	out := core.Item{key.PartitionKey: pk}
	if key.SortKey != "" {
		sk, ok := shadow[shadowEntitySK]
		if !ok {
			return nil, &ierrors.SchemaError{Err: ierrors.ErrMissingAttribute, Table: e.table.Name(), Attribute: shadowEntitySK}
		}
		out[key.SortKey] = sk
	}
	return out, nil
}

func (e *Engine) deleteShadowStep(ref shadowRef, observed int64) txStep {
	return txStep{
		operation: opDeleteShadow,
		attribute: ref.attribute,
		guard:     guardVersion,
		item: types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(e.table.Name()),
			Key:                       e.keyFor(ref.key),
			ConditionExpression:       aws.String("#v = :v"),
			ExpressionAttributeNames:  map[string]string{"#v": VersionAttribute},
			ExpressionAttributeValues: versionValue(observed),
		}},
	}
}

// Version reads the optimistic-concurrency counter from an item.
func Version(item core.Item) (int64, error) {
	av, ok := item[VersionAttribute]
	if !ok {
		return 0, ierrors.ErrMissingAttribute
	}
	nv, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, ierrors.ErrInvalidAttributeValue
	}
	v, err := strconv.ParseInt(nv.Value, 10, 64)
	if err != nil {
		return 0, ierrors.ErrInvalidAttributeValue
	}
	return v, nil
}

func versionValue(v int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)},
	}
}

func cloneItem(item core.Item) core.Item {
	out := make(core.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
