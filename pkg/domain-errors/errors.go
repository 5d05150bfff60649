// Package domainerrors provides coded domain errors. Services return these so
// the transport layer can translate failures into statuses without string
// matching, and so tests can assert on the violated precondition rather than
// message text. Imported as dErrors by convention.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure. The taxonomy follows the engine's
// precondition groups: temporal, capacity, authorization, arithmetic,
// sequencing and validation.
type Code string

const (
	// Validation.
	CodeInvalidInput    Code = "invalid_input"
	CodeInvalidWindow   Code = "invalid_window"
	CodeInvalidDuration Code = "invalid_duration"
	CodeInvalidCapacity Code = "invalid_capacity"
	CodeZeroAmount      Code = "zero_amount"
	CodeZeroSupply      Code = "zero_supply"

	// Temporal.
	CodeNotStarted      Code = "not_started"
	CodeWindowClosed    Code = "window_closed"
	CodeWindowStillOpen Code = "window_still_open"

	// Capacity.
	CodeAlreadyFull      Code = "already_full"
	CodeStillFundraising Code = "still_fundraising"

	// Authorization.
	CodeUnauthorized         Code = "unauthorized"
	CodeInvalidMintAuthority Code = "invalid_mint_authority"

	// Arithmetic.
	CodeCalculationOverflow Code = "calculation_overflow"

	// Sequencing.
	CodeNotYetConverted     Code = "not_yet_converted"
	CodeAlreadyConverted    Code = "already_converted"
	CodeMustRefundFirst     Code = "must_refund_first"
	CodeMustDistributeFirst Code = "must_distribute_first"

	// Infrastructure facts surfaced at the domain boundary.
	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
