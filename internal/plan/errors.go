package plan

import (
	"errors"
	"fmt"
)

// Rejection reports that an operation cannot be represented on this backend
// or in the plan's current mode. It is an ordinary outcome: the caller keeps
// the operation and evaluates it somewhere else.
//
// Rejections cover:
//   - Capability: the backend predicate returned false
//   - Mode: the operation is illegal in the current mode (filter on a total,
//     split after split, total from a non-raw plan)
//   - Unresolved: the filter still has free references
//   - Type: an apply whose result is not NUMBER or TIME
//   - Key collision: an apply redefining the split key
//   - Sort after limit: a sort offered once a limit is set
//   - Invalid: a malformed operation, or a grouped operation that reads a
//     column the plan no longer outputs
type Rejection struct {
	// Code identifies the rejection category.
	Code RejectionCode

	// Op is the rejected operation.
	Op Operation

	// Message is a human-readable description.
	Message string
}

// RejectionCode categorizes rejections.
type RejectionCode string

const (
	// RejectCapability indicates the backend cannot execute the operation.
	RejectCapability RejectionCode = "CAPABILITY"

	// RejectMode indicates the operation is illegal in the current mode.
	RejectMode RejectionCode = "MODE"

	// RejectUnresolved indicates the expression has free references.
	RejectUnresolved RejectionCode = "UNRESOLVED"

	// RejectType indicates an apply with a non NUMBER/TIME result.
	RejectType RejectionCode = "TYPE"

	// RejectKeyCollision indicates an apply that redefines the split key.
	RejectKeyCollision RejectionCode = "KEY_COLLISION"

	// RejectSortAfterLimit indicates a sort offered after a limit.
	RejectSortAfterLimit RejectionCode = "SORT_AFTER_LIMIT"

	// RejectInvalid indicates a malformed operation (empty name, negative
	// limit, nil expression).
	RejectInvalid RejectionCode = "INVALID"
)

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Op != nil {
		return fmt.Sprintf("%s: %s (op=%s)", r.Code, r.Message, r.Op)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// IsRejection returns true if err is a rejection of any code.
// Uses errors.As to handle wrapped errors.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// RejectionCodeOf returns the code of a rejection, or "" if err is not one.
func RejectionCodeOf(err error) RejectionCode {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return ""
}

func reject(code RejectionCode, op Operation, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Fatal planner errors. These indicate a broken invariant or a
// misconfiguration, never an ordinary capability mismatch.
var (
	// ErrUnknownOperation is returned for an operation kind the plan layer
	// does not understand at all.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrNamesExhausted is returned when no temporary attribute name is
	// available within the configured search bound.
	ErrNamesExhausted = errors.New("could not find available name")

	// ErrNotConstructed is returned by every method of a Plan that was not
	// built through New.
	ErrNotConstructed = errors.New("plan was not constructed through plan.New")

	// ErrUnknownEngine is returned by New for an engine with no registered
	// backend.
	ErrUnknownEngine = errors.New("unsupported engine")

	// ErrNotIntrospected is returned when the schema is required but has not
	// been discovered yet.
	ErrNotIntrospected = errors.New("dataset has not been introspected")
)
