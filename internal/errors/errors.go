// Package errors provides the named error kinds returned by the detach core.
// Every error carries the operation that failed and a severity that tells
// callers whether they can keep going (one unreadable record while listing)
// or must stop (a launch that did not happen).
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/kokjohn0824/detach/internal/i18n"
)

// Severity represents the severity level of an error
type Severity int

const (
	// SeverityRecoverable indicates an error that can be logged and execution can continue
	SeverityRecoverable Severity = iota
	// SeverityFatal indicates an error that must halt execution
	SeverityFatal
)

// Kind names one class of failure
type Kind int

const (
	KindUnknown Kind = iota
	KindLaunch
	KindLaunchTimeout
	KindDuplicateID
	KindNotFound
	KindTimeout
	KindStoreCorruption
	KindInvalid
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindLaunch:
		return "LaunchError"
	case KindLaunchTimeout:
		return "LaunchTimeout"
	case KindDuplicateID:
		return "DuplicateId"
	case KindNotFound:
		return "NotFound"
	case KindTimeout:
		return "Timeout"
	case KindStoreCorruption:
		return "StoreCorruption"
	case KindInvalid:
		return "InvalidRequest"
	default:
		return "Unknown"
	}
}

// Reason refines a launch failure
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNotFound   Reason = "command not found"
	ReasonPermission Reason = "permission denied"
	ReasonDetach     Reason = "detach failed"
	ReasonRedirect   Reason = "redirection failed"
	ReasonInvalid    Reason = "invalid request"
)

// DetachError is the interface implemented by all errors of this package
type DetachError interface {
	error
	Severity() Severity
	Unwrap() error
}

// Error is a named failure of a detach operation
type Error struct {
	Kind    Kind
	Reason  Reason // set for KindLaunch
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Severity classifies the error. Only failures that leave the caller without
// the result it asked for are fatal.
func (e *Error) Severity() Severity {
	switch e.Kind {
	case KindStoreCorruption, KindTimeout, KindNotFound:
		return SeverityRecoverable
	default:
		return SeverityFatal
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, and by reason when the sentinel has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Message != "" || t.Err != nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is
var (
	ErrLaunch          = &Error{Kind: KindLaunch}
	ErrLaunchTimeout   = &Error{Kind: KindLaunchTimeout}
	ErrDuplicateID     = &Error{Kind: KindDuplicateID}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrStoreCorruption = &Error{Kind: KindStoreCorruption}
	ErrInvalid         = &Error{Kind: KindInvalid}

	ErrCommandNotFound  = &Error{Kind: KindLaunch, Reason: ReasonNotFound}
	ErrPermissionDenied = &Error{Kind: KindLaunch, Reason: ReasonPermission}
)

// New creates an error of the given kind
func New(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the launch reason carried by err, if any
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var detachErr DetachError
	if errors.As(err, &detachErr) {
		return detachErr.Severity() == SeverityRecoverable
	}
	return false
}

// IsFatal checks if an error is fatal
func IsFatal(err error) bool {
	var detachErr DetachError
	if errors.As(err, &detachErr) {
		return detachErr.Severity() == SeverityFatal
	}

	// By default, unknown errors are treated as fatal
	return err != nil
}

// Common error constructors for specific scenarios

// Launch creates a launch failure with the given reason
func Launch(reason Reason, detail string, err error) *Error {
	msg := string(reason)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", reason, detail)
	}
	return &Error{Kind: KindLaunch, Reason: reason, Op: i18n.ErrOpStart, Message: msg, Err: err}
}

// LaunchTimeout creates an error for a startup handshake that exceeded its budget
func LaunchTimeout(after time.Duration) *Error {
	return New(KindLaunchTimeout, i18n.ErrOpStart, fmt.Sprintf(i18n.ErrMsgLaunchTimeout, after), nil)
}

// DuplicateID creates an error for a store insert that collides with a live record
func DuplicateID(id string) *Error {
	return New(KindDuplicateID, i18n.ErrOpStore, fmt.Sprintf(i18n.ErrMsgDuplicateID, id), nil)
}

// NotFound creates an error for an unknown task id
func NotFound(op, id string) *Error {
	return New(KindNotFound, op, fmt.Sprintf(i18n.ErrMsgNotFound, id), nil)
}

// Timeout creates an error for an operation whose deadline elapsed
func Timeout(op, id string, after time.Duration) *Error {
	return New(KindTimeout, op, fmt.Sprintf(i18n.ErrMsgTimeout, id, after), nil)
}

// StoreCorruption creates an error for an unreadable or partial record
func StoreCorruption(path string, err error) *Error {
	return New(KindStoreCorruption, i18n.ErrOpStore, fmt.Sprintf(i18n.ErrMsgStoreCorruption, path), err)
}

// Invalid creates an error for a request the core refuses to act on
func Invalid(op, message string) *Error {
	return New(KindInvalid, op, message, nil)
}
