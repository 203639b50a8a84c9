// Package errors provides the gateway's machine-readable error codes.
package errors

import "net/http"

// Code is a machine-readable error code sent to clients.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidRequest  Code = "INVALID_REQUEST"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     Code = "RATE_LIMITED"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeNotRegistered   Code = "NOT_REGISTERED"

	// Submission errors
	CodeRejected             Code = "REJECTED"
	CodeNonceConflict        Code = "NONCE_CONFLICT"
	CodeIdempotencyKeyReused Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInProgress           Code = "IN_PROGRESS"
	CodeTimeout              Code = "TIMEOUT"
	CodeUnavailable          Code = "UNAVAILABLE"

	// Stream errors
	CodeDecodeFailed Code = "DECODE_FAILED"

	CodeInternal Code = "INTERNAL"
)

// Retryable reports whether a failure with this code may succeed unchanged
// on a later attempt.
func (c Code) Retryable() bool {
	switch c {
	case CodeTimeout, CodeUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps a code to the status the gateway's HTTP surfaces use.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeNotRegistered, CodeNonceConflict, CodeRejected:
		return http.StatusUnprocessableEntity
	case CodeIdempotencyKeyReused, CodeInProgress:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// CodeForStatus classifies a ledger HTTP status.
func CodeForStatus(status int) Code {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusRequestEntityTooLarge:
		return CodePayloadTooLarge
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeUnavailable
	case status >= 400:
		return CodeRejected
	}
	return CodeUnknown
}
