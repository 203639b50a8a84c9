package errors

import stderrors "errors"

// Error is the gateway error type carrying a stable code.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Client-safe message
	Cause   error  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Retryable reports whether err carries a retryable code.
func Retryable(err error) bool {
	return CodeOf(err).Retryable()
}

// Payload is the client-visible shape of an error.
type Payload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToPayload renders err for a client. Errors without a code are reported as
// internal and their text is not exposed.
func ToPayload(err error) Payload {
	var e *Error
	if stderrors.As(err, &e) {
		return Payload{Code: e.Code, Message: e.Error()}
	}
	return Payload{Code: CodeInternal, Message: "internal error"}
}
