// Package apperr defines the error taxonomy shared by the ledger engine and
// its transports.
//
// Every domain failure is an *Error carrying a stable machine-readable Code,
// a Kind used by transports to choose a status code, and a human-readable
// Detail. Sentinels are compared with errors.Is, which matches on Code only,
// so a detailed error produced with Newf still matches its sentinel:
//
//	err := apperr.Newf(apperr.ErrSplitMismatch, "splits total %s, expense is %s", got, want)
//	errors.Is(err, apperr.ErrSplitMismatch) // true
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should react to them.
type Kind int

const (
	// KindInternal is the zero value, used for errors that are not *Error.
	KindInternal Kind = iota
	// KindValidation marks malformed or inconsistent input. Never retried.
	KindValidation
	// KindUnauthenticated marks a request without a usable identity.
	KindUnauthenticated
	// KindForbidden marks an authenticated requester acting on something they do not own.
	KindForbidden
	// KindNotFound marks an unknown group, expense or user.
	KindNotFound
	// KindConflict marks a request that clashes with current state or a concurrent writer.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified domain error.
type Error struct {
	Code   string
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func define(kind Kind, code, detail string) *Error {
	return &Error{Code: code, Kind: kind, Detail: detail}
}

// Validation errors.
var (
	ErrEmptyParticipants    = define(KindValidation, "empty_participants", "at least one participant is required")
	ErrSplitMismatch        = define(KindValidation, "split_mismatch", "split amounts do not reconcile with the expense amount")
	ErrUnknownMember        = define(KindValidation, "unknown_member", "user is not a member of the group")
	ErrInvalidShare         = define(KindValidation, "invalid_share", "share count must be a positive integer")
	ErrInvalidAmount        = define(KindValidation, "invalid_amount", "amount is out of range")
	ErrInvalidSplitType     = define(KindValidation, "invalid_split_type", "split type must be one of equal, exact, percentage, shares")
	ErrDuplicateParticipant = define(KindValidation, "duplicate_participant", "a user appears more than once in the split")
	ErrSelfSettlement       = define(KindValidation, "self_settlement", "from_user and to_user must differ")
	ErrInvalidRequest       = define(KindValidation, "invalid_request", "request is malformed")
)

// Access errors.
var (
	ErrUnauthenticated = define(KindUnauthenticated, "unauthenticated", "authentication required")
	ErrForbidden       = define(KindForbidden, "forbidden", "not allowed")
	ErrNotFound        = define(KindNotFound, "not_found", "resource not found")
)

// Conflict errors.
var (
	ErrAlreadyMember = define(KindConflict, "already_member", "user is already a member of the group")
	ErrMemberInUse   = define(KindConflict, "member_in_use", "member is referenced by the group's ledger")
	ErrConflict      = define(KindConflict, "conflict", "concurrent modification")
)

// Newf returns a copy of base with a formatted detail message.
func Newf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Detail: fmt.Sprintf(format, args...)}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of err, or "internal" when err is not classified.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return "internal"
}
