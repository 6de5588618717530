package errors

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error codes carried in the response envelope.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeEmptyCart           = "EMPTY_CART"
	CodeNotFound            = "NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeOutOfStock          = "OUT_OF_STOCK"
	CodePaymentPrecondition = "PAYMENT_PRECONDITION_FAILED"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeGatewayError        = "PAYMENT_GATEWAY_ERROR"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL"
)

// Error represents an application error with its HTTP status and code.
// Errors holds optional structured details for the client.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Errors     interface{}
	Err        error

	stack []uintptr
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// StackTrace formats the call stack captured when the error was created.
func (e *Error) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(e.stack)
	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// New creates a new Error
func New(statusCode int, code, message string, err error) *Error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Err:        err,
		stack:      pcs[:n],
	}
}

// WithDetails attaches client-facing details and returns e.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Errors = details
	return e
}

func Validation(message string, details interface{}) *Error {
	return New(http.StatusBadRequest, CodeValidation, message, nil).WithDetails(details)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message, nil)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message, nil)
}

func Internal(message string, err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, message, err)
}
