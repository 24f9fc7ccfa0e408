package oluacle

import (
	"errors"
	"fmt"

	"github.com/oluacle/oluacle/oci"
)

// define all package level errors here
var (
	ErrConnClosed    = errors.New("oluacle: connection closed")
	ErrStmtFinalized = errors.New("oluacle: statement finalized")
	ErrNotExecuted   = errors.New("oluacle: statement has no open result set")
	ErrBindFailed    = errors.New("oluacle: statement has a failed bind")
)

// ErrorKind classifies a failure.
type ErrorKind int

const (
	// KindWarning is OCI_SUCCESS_WITH_INFO; the call did run.
	KindWarning ErrorKind = iota + 1
	// KindRecoverable is OCI_ERROR.
	KindRecoverable
	// KindFatal covers statuses this package cannot continue from
	// (invalid handle, still executing, continue, need data).
	KindFatal
	// KindUnknown is any status code OCI does not document.
	KindUnknown
	// KindAlloc is a failed environment or handle allocation.
	KindAlloc
	// KindMisuse is a caller error: closed connection, finalized statement,
	// out-of-sequence call.
	KindMisuse
)

func (k ErrorKind) String() string {
	switch k {
	case KindWarning:
		return "warning"
	case KindRecoverable:
		return "error"
	case KindFatal:
		return "fatal"
	case KindUnknown:
		return "unknown"
	case KindAlloc:
		return "alloc"
	case KindMisuse:
		return "misuse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every operation that fails.
type Error struct {
	Kind ErrorKind
	// Op is the operation that failed, e.g. "prepare" or "fetch".
	Op string
	// Status is the native status, zero for misuse and allocation errors.
	Status oci.Status
	// Code is the ORA error number when the diagnostic record carried one.
	Code    int32
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("oluacle: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ORACode returns the ORA error number carried by err, or 0.
func ORACode(err error) int32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func misuse(op string, err error) error {
	return &Error{Kind: KindMisuse, Op: op, Err: err}
}

func allocError(op string, what string, status oci.Status) error {
	return &Error{Kind: KindAlloc, Op: op, Status: status, Message: fmt.Sprintf("cannot allocate %s (%s)", what, status)}
}

// translate turns a native status into an error. OCI_SUCCESS and OCI_NO_DATA
// are not errors; callers that care about end of data test for it first.
func translate(op string, api oci.API, errh oci.Handle, status oci.Status) error {
	switch status {
	case oci.OCI_SUCCESS, oci.OCI_NO_DATA:
		return nil
	case oci.OCI_SUCCESS_WITH_INFO:
		code, msg := diagnostic(api, errh)
		if msg == "" {
			msg = "warning"
		}
		return &Error{Kind: KindWarning, Op: op, Status: status, Code: code, Message: msg}
	case oci.OCI_ERROR:
		code, msg := diagnostic(api, errh)
		if msg == "" {
			msg = "error"
		}
		return &Error{Kind: KindRecoverable, Op: op, Status: status, Code: code, Message: msg}
	case oci.OCI_INVALID_HANDLE:
		return &Error{Kind: KindFatal, Op: op, Status: status, Message: "invalid handle"}
	case oci.OCI_STILL_EXECUTING:
		return &Error{Kind: KindFatal, Op: op, Status: status, Message: "still executing"}
	case oci.OCI_CONTINUE:
		return &Error{Kind: KindFatal, Op: op, Status: status, Message: "continue"}
	case oci.OCI_NEED_DATA:
		return &Error{Kind: KindFatal, Op: op, Status: status, Message: "need data"}
	default:
		return &Error{Kind: KindUnknown, Op: op, Status: status, Message: fmt.Sprintf("unknown status code %d", int32(status))}
	}
}

func diagnostic(api oci.API, errh oci.Handle) (int32, string) {
	if api == nil || errh == 0 {
		return 0, ""
	}
	code, msg, st := api.ErrorGet(errh, 1)
	if st != oci.OCI_SUCCESS {
		return 0, ""
	}
	return code, msg
}
