package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure kind. Every kind maps to one HTTP status and one
// user-facing message; callers must never collapse them into a generic error.
type Code string

const (
	CodeInvalidCredential  Code = "INVALID_CREDENTIAL"
	CodeBatchNotFound      Code = "BATCH_NOT_FOUND"
	CodeBatchInactive      Code = "BATCH_INACTIVE"
	CodeNotEnrolled        Code = "NOT_ENROLLED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenBatchMismatch Code = "TOKEN_BATCH_MISMATCH"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeTransient          Code = "TRANSIENT"
)

// Error carries a taxonomy code alongside the message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func New(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func InvalidCredential(msg string) *Error { return New(CodeInvalidCredential, msg) }
func BatchNotFound(id string) *Error {
	return New(CodeBatchNotFound, "batch "+id+" does not exist")
}
func BatchInactive(id string) *Error {
	return New(CodeBatchInactive, "batch "+id+" has been deactivated")
}
func NotEnrolled() *Error {
	return New(CodeNotEnrolled, "not enrolled in this batch")
}
func InvalidToken() *Error {
	return New(CodeInvalidToken, "attendance token not recognized")
}
func TokenBatchMismatch() *Error {
	return New(CodeTokenBatchMismatch, "attendance token belongs to a different batch")
}
func TokenExpired(day string) *Error {
	return New(CodeTokenExpired, "attendance token is only valid on "+day)
}
func Invalid(msg string) *Error { return New(CodeInvalidArgument, msg) }

// Transient wraps an infrastructure failure. Callers may retry blindly: every
// mutating operation is idempotent on its natural key.
func Transient(err error) *Error {
	return New(CodeTransient, "temporary failure: "+err.Error())
}

// CodeOf extracts the taxonomy code, or CodeTransient for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}

// IsRetryable reports whether the caller may safely retry.
func IsRetryable(err error) bool { return CodeOf(err) == CodeTransient }

// HTTPStatus maps a taxonomy code to its response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidCredential, CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeBatchNotFound:
		return http.StatusNotFound
	case CodeBatchInactive, CodeTokenBatchMismatch:
		return http.StatusConflict
	case CodeNotEnrolled:
		return http.StatusForbidden
	case CodeTokenExpired:
		return http.StatusGone
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}
