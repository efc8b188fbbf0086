// Package orcherr defines the logical error taxonomy shared by every core
// component, mirroring the teacher's fmt.Errorf("...: %w", err) wrapping
// idiom instead of introducing a third-party errors-taxonomy package.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an Error belongs to.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindInUse                Kind = "in_use"
	KindInvalid              Kind = "invalid"
	KindConflict             Kind = "conflict"
	KindMissingVariable      Kind = "missing_variable"
	KindCapabilityMismatch   Kind = "capability_mismatch"
	KindOverloaded           Kind = "overloaded"
	KindDispatchFailed       Kind = "dispatch_failed"
	KindTimeout              Kind = "timeout"
	KindCancelled            Kind = "cancelled"
	KindStorage              Kind = "storage"
)

// Error is the concrete type every Facade-reachable operation returns on failure.
type Error struct {
	Kind   Kind
	Entity string
	Field  string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s not found: %s", e.Entity, e.Field)
	case KindInUse:
		return fmt.Sprintf("%s is in use by %s", e.Entity, e.Field)
	case KindInvalid:
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	case KindConflict:
		return fmt.Sprintf("%s already exists with %s", e.Entity, e.Field)
	case KindMissingVariable:
		return fmt.Sprintf("missing required variable: %s", e.Field)
	case KindCapabilityMismatch:
		return fmt.Sprintf("capability/OS mismatch: %s", e.Reason)
	case KindOverloaded:
		return "executor overloaded: submit timeout exceeded"
	case KindDispatchFailed:
		return fmt.Sprintf("dispatch failed: %s", e.Reason)
	case KindTimeout:
		return "timeout exceeded"
	case KindCancelled:
		return "cancelled"
	case KindStorage:
		if e.Cause != nil {
			return fmt.Sprintf("storage error: %v", e.Cause)
		}
		return "storage error"
	default:
		return e.Reason
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NotFound(entity string, key any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Field: fmt.Sprintf("%v", key)}
}

func InUse(entity, referrer string) *Error {
	return &Error{Kind: KindInUse, Entity: entity, Field: referrer}
}

func Invalid(field, reason string) *Error {
	return &Error{Kind: KindInvalid, Field: field, Reason: reason}
}

func Conflict(entity, field string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Field: field}
}

func MissingVariable(name string) *Error {
	return &Error{Kind: KindMissingVariable, Field: name}
}

func CapabilityMismatch(server, template, detail string) *Error {
	return &Error{Kind: KindCapabilityMismatch, Entity: server, Field: template, Reason: detail}
}

func Overloaded() *Error {
	return &Error{Kind: KindOverloaded}
}

func DispatchFailed(reason string) *Error {
	return &Error{Kind: KindDispatchFailed, Reason: reason}
}

func Timeout() *Error {
	return &Error{Kind: KindTimeout}
}

func Cancelled() *Error {
	return &Error{Kind: KindCancelled}
}

func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Cause: cause}
}

// Is reports whether err is an *Error of the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
