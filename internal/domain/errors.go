package domain

import (
	"errors"
	"fmt"
)

// ─── Error Surface ──────────────────────────────────────────────────────────
// One sum type covers every failure the daemon can surface. Library errors
// are translated into it at component boundaries; nothing leaks a
// driver-specific error type past the store, the API manager, or a context
// source.

// ErrorKind categorizes a failure for retry and reporting decisions.
type ErrorKind string

const (
	KindConfig             ErrorKind = "config"
	KindDatabase           ErrorKind = "database"
	KindCalendarSync       ErrorKind = "calendar_sync"
	KindAuthentication     ErrorKind = "authentication"
	KindAPI                ErrorKind = "api"
	KindNetwork            ErrorKind = "network"
	KindFileSystem         ErrorKind = "file_system"
	KindParsing            ErrorKind = "parsing"
	KindTimeout            ErrorKind = "timeout"
	KindValidation         ErrorKind = "validation"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindInternal           ErrorKind = "internal"
)

// Error carries a kind, a short operation-or-service tag and a
// human-readable message. It optionally wraps the underlying cause.
type Error struct {
	Kind    ErrorKind
	Op      string // operation or service tag, e.g. "anthropic", "events.bulk"
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two domain errors by kind, so callers can write
// errors.Is(err, &domain.Error{Kind: domain.KindTimeout}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Recoverable reports whether a retry may succeed without user
// intervention. Network, timeout, API and calendar-sync failures are
// transient; everything else is surfaced immediately.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindAPI, KindCalendarSync:
		return true
	default:
		return false
	}
}

// ─── Constructors ───────────────────────────────────────────────────────────

// Errf builds a domain error with a formatted message.
func Errf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a domain error around an underlying cause.
func Wrap(kind ErrorKind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the kind from any error, defaulting to Internal for
// errors that did not originate in this module.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsRecoverable reports whether err is a recoverable domain error.
func IsRecoverable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Recoverable()
	}
	return false
}
