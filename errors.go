package relagg

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failure categories.
var (
	// ErrMappingDefect is matched by every error that indicates a defect in the
	// mapping metadata or in the traversal state, as opposed to a database error.
	ErrMappingDefect = errors.New("relagg: mapping defect")

	// ErrOptimisticLock is returned when a version-checked write affects no rows.
	ErrOptimisticLock = errors.New("relagg: optimistic locking failure")

	// ErrUnsupported is returned when an aggregate shape is not supported by
	// the requested operation.
	ErrUnsupported = errors.New("relagg: unsupported aggregate")
)

// InvariantError reports a violated internal invariant, such as a leaf-only
// path operation called on a root path or an action that was never recorded.
type InvariantError struct {
	Op      string // Operation that detected the violation
	Subject string // Offending path, action or type
	Message string
}

// Error returns the error string.
func (e *InvariantError) Error() string {
	var b strings.Builder
	b.WriteString("relagg: invariant violated")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Subject != "" {
		fmt.Fprintf(&b, " (%s)", e.Subject)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches ErrMappingDefect.
func (e *InvariantError) Is(target error) bool {
	return target == ErrMappingDefect
}

// NewInvariantError returns a new InvariantError.
func NewInvariantError(op, subject, message string) *InvariantError {
	return &InvariantError{Op: op, Subject: subject, Message: message}
}

// Invariantf returns a new InvariantError with a formatted message.
func Invariantf(op, subject, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IsInvariantError returns true if the error is an InvariantError.
func IsInvariantError(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

// MetadataError reports mapping metadata that cannot be resolved, for example
// a path requiring an identifier on an entity that declares none.
type MetadataError struct {
	Type    string // Entity type name
	Path    string // Property path (if applicable)
	Message string
	Cause   error
}

// Error returns the error string.
func (e *MetadataError) Error() string {
	var b strings.Builder
	b.WriteString("relagg: metadata error")
	if e.Type != "" {
		b.WriteString(" on type ")
		b.WriteString(e.Type)
	}
	if e.Path != "" {
		b.WriteString(" path ")
		b.WriteString(e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *MetadataError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches ErrMappingDefect.
func (e *MetadataError) Is(target error) bool {
	return target == ErrMappingDefect
}

// NewMetadataError returns a new MetadataError.
func NewMetadataError(typeName, path, message string, cause error) *MetadataError {
	return &MetadataError{Type: typeName, Path: path, Message: message, Cause: cause}
}

// IsMetadataError returns true if the error is a MetadataError.
func IsMetadataError(err error) bool {
	var e *MetadataError
	return errors.As(err, &e)
}

// IsMappingDefect returns true if the error belongs to the mapping defect
// category (invariant violations and unresolvable metadata).
func IsMappingDefect(err error) bool {
	return err != nil && errors.Is(err, ErrMappingDefect)
}

// OptimisticLockingError is returned by executors when an update or delete
// guarded by a version affects zero rows.
type OptimisticLockingError struct {
	Entity  string
	Table   string
	ID      any
	Version any
}

// Error returns the error string.
func (e *OptimisticLockingError) Error() string {
	return fmt.Sprintf("relagg: optimistic locking failed for %s with id %v and version %v in table %s",
		e.Entity, e.ID, e.Version, e.Table)
}

// Is reports whether the target matches ErrOptimisticLock.
func (e *OptimisticLockingError) Is(target error) bool {
	return target == ErrOptimisticLock
}

// NewOptimisticLockingError returns a new OptimisticLockingError.
func NewOptimisticLockingError(entity, table string, id, version any) *OptimisticLockingError {
	return &OptimisticLockingError{Entity: entity, Table: table, ID: id, Version: version}
}

// IsOptimisticLockingError returns true if the error is an OptimisticLockingError.
func IsOptimisticLockingError(err error) bool {
	var e *OptimisticLockingError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("relagg: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// UnsupportedError reports an aggregate shape that an operation cannot handle.
type UnsupportedError struct {
	Entity string
	Reason string
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("relagg: unsupported aggregate %s: %s", e.Entity, e.Reason)
}

// Is reports whether the target matches ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// NewUnsupportedError returns a new UnsupportedError.
func NewUnsupportedError(entity, reason string) *UnsupportedError {
	return &UnsupportedError{Entity: entity, Reason: reason}
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "relagg: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("relagg: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
