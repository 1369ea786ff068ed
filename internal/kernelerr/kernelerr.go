// Package kernelerr is the kernel's Go-native error taxonomy. Internal call
// sites wrap and inspect errors idiomatically with errors.Is/errors.As and
// fmt.Errorf("...: %w", err); a kernelerr.Error additionally carries the
// error-journal Kind so the site that ultimately files an ErrorEntry can read
// it straight off the error instead of re-deriving it from a message string.
//
// Adapted from the AppError pattern found elsewhere in the retrieved pack (a
// Code/Message/wrapped-Err struct with constructors per code and
// errors.As-based predicates), retargeted from that pack member's HTTP
// status-style codes to the five error-journal sources this spec names.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind mirrors workmem.ErrorSource; kept as an independent string type here
// so this package has no import-cycle dependency on workmem.
type Kind string

const (
	KindToolFailure       Kind = "tool_failure"
	KindQualityGate       Kind = "quality_gate"
	KindDelegationFailure Kind = "delegation_failure"
	KindValidation        Kind = "validation"
	KindRuntime           Kind = "runtime"
)

// Error is the kernel's wrapped-error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Err: cause}
}

// ToolFailure wraps a tool invocation or schema-validation failure.
func ToolFailure(msg string, cause error) *Error {
	return newErr(KindToolFailure, msg, cause)
}

// QualityGate wraps an output-did-not-meet-quality-floor failure.
func QualityGate(msg string) *Error {
	return newErr(KindQualityGate, msg, nil)
}

// DelegationFailure wraps a child-emitted-failure-or-timeout failure.
func DelegationFailure(msg string, cause error) *Error {
	return newErr(KindDelegationFailure, msg, cause)
}

// Validation wraps an internal-consistency-check failure.
func Validation(msg string) *Error {
	return newErr(KindValidation, msg, nil)
}

// Runtime wraps an infrastructure fault (inference unavailable, bus overflow,
// cancellation); per the propagation policy these bubble up unfiltered.
func Runtime(msg string, cause error) *Error {
	return newErr(KindRuntime, msg, cause)
}

// Is reports whether err (or anything it wraps) is a kernelerr.Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err if it (or anything it wraps) is a
// kernelerr.Error; ok is false otherwise.
func KindOf(err error) (k Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
