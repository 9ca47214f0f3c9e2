package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provisioning failures. The kind decides retry policy:
// only TRANSIENT_NETWORK may be retried, and only by the caller.
type ErrorKind string

const (
	// KindTransientNetwork covers connection resets, timeouts on a single
	// call, and other failures that may succeed on a later attempt.
	KindTransientNetwork ErrorKind = "TRANSIENT_NETWORK"

	// KindPermissionDenied means the executing principal lacks rights.
	// Never retried automatically.
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"

	// KindValidation means the target state is malformed. Raised before any
	// network call.
	KindValidation ErrorKind = "VALIDATION"

	// KindFederationDrift means a service user exists with a different
	// trust binding than the target. Requires explicit operator override.
	KindFederationDrift ErrorKind = "FEDERATION_DRIFT"

	// KindTimeout means the run's deadline expired or the verification
	// budget ran out.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindNotFound is used internally to decide create vs. skip. It is not
	// surfaced to callers of the provisioning flow.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// Error is a typed provisioning error carrying enough identity (operation,
// object) that a retry can be diagnosed without re-deriving the plan.
type Error struct {
	Kind ErrorKind

	// Op is the failing operation, e.g. "grant" or "create".
	Op string

	// Object is the platform object involved, e.g. "database DEMO_DB".
	Object string

	Wrapped error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Object != "" {
		msg += " on " + e.Object
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError builds a typed error for the given kind and operation identity.
func NewError(kind ErrorKind, op, object string, wrapped error) *Error {
	return &Error{Kind: kind, Op: op, Object: object, Wrapped: wrapped}
}

// Validationf builds a VALIDATION error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Wrapped: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Unclassified errors report TRANSIENT_NETWORK so callers err on the side of
// allowing a retry rather than declaring a permanent failure.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransientNetwork
}

// IsFatal reports whether the error kind must stop a run immediately.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindPermissionDenied, KindFederationDrift, KindValidation, KindTimeout:
		return true
	}
	return false
}
