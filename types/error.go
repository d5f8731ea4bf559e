package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Validation error codes. These fail a dispatch before any backend call.
const (
	ErrCodeEmptyInput        ErrorCode = "EMPTY_INPUT"
	ErrCodeMissingParameter  ErrorCode = "MISSING_PARAMETER"
	ErrCodeUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"
	ErrCodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
)

// Backend error codes. Recovered at row/variant granularity during a batch.
const (
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeDecodeWarning      ErrorCode = "DECODE_WARNING"
)

// Operation error codes.
const (
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is. Any *Error with the same code matches.
var (
	ErrEmptyInput         = NewError(ErrCodeEmptyInput, "no data provided")
	ErrMissingParameter   = NewError(ErrCodeMissingParameter, "missing parameter")
	ErrUnsupportedAction  = NewError(ErrCodeUnsupportedAction, "unsupported action")
	ErrBackendUnavailable = NewError(ErrCodeBackendUnavailable, "backend unavailable")
	ErrDecodeWarning      = NewError(ErrCodeDecodeWarning, "malformed stream line")
	ErrOperationFailed    = NewError(ErrCodeOperationFailed, "operation failed")
	ErrNotFound           = NewError(ErrCodeNotFound, "not found")
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Status returns the HTTP status the error should be surfaced with.
func (e *Error) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrCodeEmptyInput, ErrCodeMissingParameter, ErrCodeUnsupportedAction, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewEmptyInputError 数据集为空
func NewEmptyInputError(stage string) *Error {
	return NewError(ErrCodeEmptyInput, fmt.Sprintf("no data provided for %s", stage))
}

// NewMissingParameterError 缺少必需参数
func NewMissingParameterError(param string) *Error {
	return NewError(ErrCodeMissingParameter, fmt.Sprintf("missing or invalid parameter: %s", param))
}

// NewUnsupportedActionError 未知 action
func NewUnsupportedActionError(action string) *Error {
	return NewError(ErrCodeUnsupportedAction, fmt.Sprintf("invalid action: %q", action))
}

// NewBackendUnavailableError 传输层无法建立
func NewBackendUnavailableError(cause error) *Error {
	return NewError(ErrCodeBackendUnavailable, "completion backend unavailable").
		WithCause(cause).
		WithRetryable(true)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError converts any error into *Error, wrapping unknown errors as INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrCodeInternalError, err.Error()).WithCause(err)
}
