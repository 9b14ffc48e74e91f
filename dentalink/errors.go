package dentalink

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes SDK errors.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Transport
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorNotConnected

	// Codec
	ErrorDecode
	ErrorEncode
	ErrorUnknownMessage

	// Queue
	ErrorQueueFull
	ErrorQueueDisabled

	// Misc
	ErrorInvalidConfig
	ErrorRest
	ErrorServer
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorDecode:
		return "decode_error"
	case ErrorEncode:
		return "encode_error"
	case ErrorUnknownMessage:
		return "unknown_message"
	case ErrorQueueFull:
		return "queue_full"
	case ErrorQueueDisabled:
		return "queue_disabled"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorRest:
		return "rest_error"
	case ErrorServer:
		return "server_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// DentalinkError is a structured error with a code and optional cause.
type DentalinkError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *DentalinkError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *DentalinkError) Unwrap() error {
	return e.Wrapped
}

// Is matches errors by code.
func (e *DentalinkError) Is(target error) bool {
	t, ok := target.(*DentalinkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a DentalinkError with the given code and message.
func NewError(code ErrorCode, message string) *DentalinkError {
	return &DentalinkError{Code: code, Message: message}
}

// WrapError wraps an existing error with a code and message.
func WrapError(code ErrorCode, message string, err error) *DentalinkError {
	return &DentalinkError{Code: code, Message: message, Wrapped: err}
}

// FromServerError converts a server error envelope into a DentalinkError.
func FromServerError(ev ServerErrorEvent) *DentalinkError {
	return &DentalinkError{Code: ErrorServer, Message: ev.Code + ": " + ev.Message}
}

// IsConnectionError reports whether err is transport-related.
func IsConnectionError(err error) bool {
	var de *DentalinkError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case ErrorConnection, ErrorDisconnected, ErrorTimeout, ErrorNotConnected:
		return true
	default:
		return false
	}
}

// IsQueueError reports whether err came from the offline queue.
func IsQueueError(err error) bool {
	var de *DentalinkError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == ErrorQueueFull || de.Code == ErrorQueueDisabled
}
