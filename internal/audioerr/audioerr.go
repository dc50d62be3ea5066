// Package audioerr defines the error vocabulary shared by the capture and
// analysis layers.
package audioerr

import (
	"errors"
	"fmt"
)

// Kind classifies a capture/analysis failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidConfig
	KindPermissionDenied
	KindHardwareUnavailable
	KindFormatNotSupported
	KindAlreadyRunning
	KindNotRunning
	KindPlatform
)

// String returns a stable identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindPermissionDenied:
		return "permission_denied"
	case KindHardwareUnavailable:
		return "hardware_unavailable"
	case KindFormatNotSupported:
		return "format_not_supported"
	case KindAlreadyRunning:
		return "already_running"
	case KindNotRunning:
		return "not_running"
	case KindPlatform:
		return "platform_error"
	default:
		return "unknown"
	}
}

// Error is a classified failure with an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, walking the wrap chain. Errors that carry
// no kind report KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
