package settlement

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. Callers branch on the kind, never on
// message text.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindArithmetic    Kind = "arithmetic"
	KindOracle        Kind = "oracle"
	KindTransfer      Kind = "transfer"
	KindStorage       Kind = "storage"
)

// Error is the tagged error value returned by every engine operation.
// Two errors are equal under errors.Is when their codes match, so call sites
// may attach detail without breaking sentinel comparisons.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// detailf returns a copy of base with formatted detail appended to the message.
func detailf(base *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// wrap returns a copy of base carrying cause.
func wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: cause}
}

var (
	ErrNotAuthorized = newError(KindAuthorization, "NotAuthorized", "caller is not an administrator")
	ErrNotWinner     = newError(KindAuthorization, "NotWinner", "payee is not the room winner")

	ErrAlreadyInitialized  = newError(KindState, "AlreadyInitialized", "already initialized")
	ErrNotInProgress       = newError(KindState, "NotInProgress", "room is not in progress")
	ErrRoomStillInProgress = newError(KindState, "RoomStillInProgress", "room has not ended")
	ErrAlreadySettled      = newError(KindState, "AlreadySettled", "room is already settled")
	ErrNoEntries           = newError(KindState, "NoEntries", "room has no entries")
	ErrNoWinnerSelected    = newError(KindState, "NoWinnerSelected", "draw target selected no entry")

	ErrAssetListFull         = newError(KindValidation, "AssetListFull", "whitelisted asset list is full")
	ErrAssetAlreadyExists    = newError(KindValidation, "AssetAlreadyExists", "asset is already whitelisted")
	ErrAssetNotFound         = newError(KindValidation, "AssetNotFound", "asset is not in the whitelist")
	ErrAssetNotWhitelisted   = newError(KindValidation, "AssetNotWhitelisted", "asset is not accepted")
	ErrRateOutOfRange        = newError(KindValidation, "RateOutOfRange", "commission rate must be between 0 and 100")
	ErrValueOutOfRange       = newError(KindValidation, "ValueOutOfRange", "entry value is outside the room limits")
	ErrInvalidLimits         = newError(KindValidation, "InvalidLimits", "minimum limit exceeds maximum limit")
	ErrInvalidAdministrators = newError(KindValidation, "InvalidAdministrators", "at least one administrator is required")
	ErrInvalidIdentity       = newError(KindValidation, "InvalidIdentity", "identity is invalid")

	ErrConfigNotInitialized = newError(KindNotFound, "ConfigNotInitialized", "configuration is not initialized")
	ErrRoomNotFound         = newError(KindNotFound, "RoomNotFound", "room not found")

	ErrArithmeticOverflow = newError(KindArithmetic, "ArithmeticOverflow", "arithmetic overflow")
	ErrDivisionByZero     = newError(KindArithmetic, "DivisionByZero", "division by zero")
	ErrEmptyPot           = newError(KindArithmetic, "EmptyPot", "pot total is zero")

	ErrOracleMismatch    = newError(KindOracle, "OracleMismatch", "randomness response is not from the expected oracle")
	ErrOracleUnavailable = newError(KindOracle, "OracleUnavailable", "randomness oracle unavailable")

	ErrInsufficientFunds = newError(KindTransfer, "InsufficientFunds", "insufficient funds")
	ErrTransferRejected  = newError(KindTransfer, "TransferRejected", "transfer rejected")

	ErrStorage = newError(KindStorage, "StorageFailure", "storage failure")
)

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the stable code of err, or "" when err is not an engine error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// classify keeps engine errors as they are and wraps anything else in base.
func classify(err error, base *Error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrap(base, err)
}
