// Package errors defines error types and utilities for indextheory
package errors

import (
	"errors"
	"fmt"
)

// Capability errors: the requested filter/sort/pagination combination cannot
// be executed against the available indexes or policy. Reported to the
// caller, never retried.
var (
	// ErrUnsupportedOperator is returned when a predicate uses an operator
	// the store cannot evaluate (for example ends-with, or presence under NOT).
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrUnknownAttribute is returned when a filter or sort references an
	// attribute the table does not declare.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrUnsortableAttribute is returned when a sort is requested on an
	// attribute without a total order (for example a string list).
	ErrUnsortableAttribute = errors.New("attribute is not sortable")

	// ErrPrefixTooShort is returned when a starts-with value is below the
	// minimum selective prefix length for the prefix index.
	ErrPrefixTooShort = errors.New("filter value below minimum prefix length")

	// ErrTooManyQueries is returned when a plan would require more distinct
	// key conditions than the configured maximum.
	ErrTooManyQueries = errors.New("plan requires too many queries")

	// ErrScanNotAllowed is returned when no index can serve the filter and
	// table policy forbids falling back to a full scan.
	ErrScanNotAllowed = errors.New("scan required but disallowed by policy")

	// ErrExpressionTooComplex is returned when DNF expansion would exceed
	// the safety bound.
	ErrExpressionTooComplex = errors.New("expression too complex to normalize")
)

// Conflict errors: uniqueness violations and optimistic-concurrency
// mismatches.
var (
	// ErrDuplicateValue is returned when a unique constraint is violated.
	ErrDuplicateValue = errors.New("duplicate value for unique attribute")

	// ErrIDExists is returned when creating an entity whose primary id is
	// already taken.
	ErrIDExists = errors.New("entity id already exists")

	// ErrVersionConflict is returned when an update or delete observed a
	// stale version and retries were exhausted.
	ErrVersionConflict = errors.New("entity was modified concurrently")
)

// Schema and lookup errors.
var (
	// ErrItemNotFound is returned when an item is not found in the database.
	ErrItemNotFound = errors.New("item not found")

	// ErrMissingAttribute is returned when a stored item lacks an attribute
	// the engine expects. Stale or corrupt data, never retried.
	ErrMissingAttribute = errors.New("stored item is missing a required attribute")

	// ErrInvalidAttributeValue is returned when a stored value cannot be
	// decoded as its declared type.
	ErrInvalidAttributeValue = errors.New("invalid attribute value")
)

// CapabilityError wraps a capability sentinel with the attribute or
// operator that triggered it, so callers can report the offending input.
type CapabilityError struct {
	Err       error
	Attribute string
	Operator  string
}

func (e *CapabilityError) Error() string {
	if e == nil {
		return "indextheory: capability error"
	}
	switch {
	case e.Attribute != "" && e.Operator != "":
		return fmt.Sprintf("indextheory: %v: attribute %q, operator %q", e.Err, e.Attribute, e.Operator)
	case e.Attribute != "":
		return fmt.Sprintf("indextheory: %v: attribute %q", e.Err, e.Attribute)
	case e.Operator != "":
		return fmt.Sprintf("indextheory: %v: operator %q", e.Err, e.Operator)
	default:
		return fmt.Sprintf("indextheory: %v", e.Err)
	}
}

func (e *CapabilityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCapability wraps sentinel err with the offending attribute/operator.
func NewCapability(err error, attribute, operator string) *CapabilityError {
	return &CapabilityError{Err: err, Attribute: attribute, Operator: operator}
}

// IsCapability reports whether err belongs to the capability taxonomy.
func IsCapability(err error) bool {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrUnknownAttribute) ||
		errors.Is(err, ErrUnsortableAttribute) ||
		errors.Is(err, ErrPrefixTooShort) ||
		errors.Is(err, ErrTooManyQueries) ||
		errors.Is(err, ErrScanNotAllowed) ||
		errors.Is(err, ErrExpressionTooComplex)
}

// IsConflict reports whether err is a uniqueness or version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateValue) ||
		errors.Is(err, ErrIDExists) ||
		errors.Is(err, ErrVersionConflict)
}

// IsNotFound reports whether err indicates a missing item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// TransactionError carries context for a failed transactional write: which
// operation inside the transaction tripped and why.
type TransactionError struct {
	Err            error
	Operation      string
	Attribute      string
	OperationIndex int
}

func (e *TransactionError) Error() string {
	if e == nil {
		return "indextheory: transaction failed"
	}
	op := "transaction"
	if e.Operation != "" {
		op = fmt.Sprintf("%s operation %s", op, e.Operation)
	}
	if e.OperationIndex >= 0 {
		op = fmt.Sprintf("%s (index %d)", op, e.OperationIndex)
	}
	if e.Attribute != "" {
		return fmt.Sprintf("indextheory: %s failed on attribute %q: %v", op, e.Attribute, e.Err)
	}
	return fmt.Sprintf("indextheory: %s failed: %v", op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SchemaError identifies the attribute a stored item is missing or holds in
// an undecodable form.
type SchemaError struct {
	Err       error
	Table     string
	Attribute string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "indextheory: schema error"
	}
	return fmt.Sprintf("indextheory: table %s attribute %q: %v", e.Table, e.Attribute, e.Err)
}

func (e *SchemaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
