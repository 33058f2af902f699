/*
errors.go - Error taxonomy shared by all engines

PURPOSE:
  Every business failure is one of five kinds. Callers test the kind with
  errors.Is against the sentinels; the transport layer maps kinds to
  status codes and surfaces the stable Code for clients.

ERROR KINDS:
  ErrValidation          malformed input (bad date range, missing reason)
  ErrNotFound            unknown request, employee, policy or leave type
  ErrForbidden           actor lacks the capability or ownership
  ErrConflict            state-incompatible (overlap, already processed, started)
  ErrInsufficientBalance ledger debit would go negative without override

USAGE:
  return domain.Conflict("request_not_pending", "status", "request is already approved")

  if errors.Is(err, domain.ErrConflict) { ... }

  var ib *domain.InsufficientBalanceError
  if errors.As(err, &ib) { suggest(ib.Shortfall) }
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the rule that failed
// =============================================================================

// Error is a business-rule failure with a machine-readable code.
type Error struct {
	Kind    error  // one of the sentinels above
	Code    string // stable reason code, e.g. "overlapping_request"
	Field   string // offending input field, if any
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s: %s)", e.Kind, e.Message, e.Field, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, field, message string) *Error {
	return &Error{Kind: kind, Code: code, Field: field, Message: message}
}

func Validation(code, field, message string) *Error {
	return newError(ErrValidation, code, field, message)
}

func NotFound(code, field, message string) *Error {
	return newError(ErrNotFound, code, field, message)
}

func Forbidden(code, message string) *Error {
	return newError(ErrForbidden, code, "", message)
}

func Conflict(code, field, message string) *Error {
	return newError(ErrConflict, code, field, message)
}

// InsufficientBalanceError reports the shortfall so callers can offer
// alternatives such as unpaid leave.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: available %s, requested %s, shortfall %s",
		e.Key.LeaveType, e.Key.EmployeeID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Code returns the stable reason code.
func (e *InsufficientBalanceError) Code() string { return "insufficient_balance" }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsClientError reports whether err was caused by the caller rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientBalance)
}

// KindOf returns the sentinel kind of err, or nil for system errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrInsufficientBalance, ErrValidation, ErrNotFound, ErrForbidden, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// CodeOf extracts the reason code from a structured error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return ib.Code()
	}
	return ""
}
