package ishmem

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error is ishmem's structured error type: every public operation that
// can fail returns one, carrying enough context (which PE, which team,
// what kind of failure) to let a caller branch on Code without parsing
// a message string.
type Error struct {
	Op    string    // operation that failed, e.g. "Malloc", "TeamSplitStrided"
	PE    int       // PE involved, or -1 if not applicable
	Team  int       // team ID involved, or -1 if not applicable
	Code  ErrorCode // high-level category
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.PE >= 0 {
		parts = append(parts, fmt.Sprintf("pe=%d", e.PE))
	}
	if e.Team >= 0 {
		parts = append(parts, fmt.Sprintf("team=%d", e.Team))
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("ishmem: %s", msg)
	}
	return fmt.Sprintf("ishmem: %s (%s)", msg, parts[0])
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode is a high-level failure category.
type ErrorCode string

const (
	ErrNotInitialized   ErrorCode = "library not initialized"
	ErrAlreadyInit      ErrorCode = "library already initialized"
	ErrOutOfMemory      ErrorCode = "symmetric heap exhausted"
	ErrInvalidPE        ErrorCode = "PE out of range"
	ErrNotMappable      ErrorCode = "PE not directly mappable"
	ErrTeamInvalid      ErrorCode = "invalid team"
	ErrTeamPoolExhausted ErrorCode = "team pool exhausted"
	ErrRuntimeBackend   ErrorCode = "scale-out transport backend error"
	ErrIO               ErrorCode = "I/O error"
	ErrInvalidArgument  ErrorCode = "invalid argument"
)

// NewError creates a plain op-scoped error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PE: -1, Team: -1, Code: code, Msg: msg}
}

// NewPEError creates an error scoped to a specific PE.
func NewPEError(op string, pe int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PE: pe, Team: -1, Code: code, Msg: msg}
}

// NewTeamError creates an error scoped to a specific team.
func NewTeamError(op string, team int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PE: -1, Team: team, Code: code, Msg: msg}
}

// WrapError wraps inner with ishmem op context, classifying it via
// classify when inner isn't already an *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var e *Error
	if errors.As(inner, &e) {
		return &Error{Op: op, PE: e.PE, Team: e.Team, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, PE: -1, Team: -1, Code: classify(inner), Msg: inner.Error(), Inner: inner}
}

// wrapErr is WrapError's error-interface-safe form for call sites that
// return the builtin error interface directly from a possibly-nil
// error: returning a nil *Error through an error-typed variable
// produces a non-nil interface value (the classic Go typed-nil
// pitfall), so callers that don't already guard with an explicit
// `if err != nil` should go through this instead of WrapError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError(op, err)
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, errNoMemory):
		return ErrOutOfMemory
	default:
		return ErrIO
	}
}

var errNoMemory = errors.New("out of memory")

// Fatal wraps err with a stack trace via pkg/errors, for the
// unrecoverable init-time failures ishmem treats as fatal: runtime
// plugin load failure, symmetric heap setup failure, and ring creation
// failure. Logging the stack helps a user who only sees ishmem's
// single crash report.
func Fatal(op string, err error) error {
	return pkgerrors.Wrapf(err, "ishmem: fatal in %s", op)
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
