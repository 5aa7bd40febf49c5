// Package failure defines the error taxonomy shared by the assessment
// components. Every fatal path carries a concrete, human-readable reason.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	KindConnectivity       Kind = "connectivity_error"
	KindCompile            Kind = "compile_error"
	KindRuntime            Kind = "runtime_error"
	KindTimeLimit          Kind = "time_limit_error"
	KindIntegrityViolation Kind = "integrity_violation"
	KindPermissionDenied   Kind = "permission_denied"
	KindPersistence        Kind = "persistence_error"
)

// Recoverable returns true if the participant can retry without losing stage progress
func (k Kind) Recoverable() bool {
	switch k {
	case KindConnectivity, KindCompile, KindRuntime, KindTimeLimit:
		return true
	}
	return false
}

// Error is a classified failure
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil && e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure allows an edit-and-retry loop
func (e *Error) Recoverable() bool {
	return e.Kind.Recoverable()
}

// New creates a failure of the given kind
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf creates a failure with a formatted reason
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(err error, kind Kind, reason string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the failure kind from any error in the chain
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// ReasonOf returns the human-readable reason of a classified failure,
// falling back to the error text
func ReasonOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Reason != "" {
		return fe.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Is reports whether err is a failure of the given kind
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
