// Package errors provides the sync engine's error taxonomy.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeTransient     ErrorCode = "TRANSIENT"
	CodeSerialization ErrorCode = "SERIALIZATION"
	CodeAuthorization ErrorCode = "AUTHORIZATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIG"
	CodeOffline       ErrorCode = "OFFLINE"
)

// Sentinel errors. Each one matches, through errors.Is, any SyncError
// carrying the same code.
var (
	ErrOffline          = &SyncError{Code: CodeOffline, Message: "device is offline"}
	ErrTransientNetwork = &SyncError{Code: CodeTransient, Message: "transient network error"}
	ErrSerialization    = &SyncError{Code: CodeSerialization, Message: "serialization failed"}
	ErrUnauthorized     = &SyncError{Code: CodeAuthorization, Message: "not authorized"}
	ErrNotFound         = &SyncError{Code: CodeNotFound, Message: "entity not found"}
	ErrInvalid          = &SyncError{Code: CodeValidation, Message: "invalid request"}
)

// Plain sentinels that are not part of the remote taxonomy.
var (
	ErrScopeRequired         = errors.New("scope key required")
	ErrMutationNotFound      = errors.New("pending mutation not found")
	ErrOfflineEditNotAllowed = errors.New("editing is not allowed while offline")
)

// SyncError wraps errors with a code and additional context.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SyncError with the same code.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new SyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Transient wraps cause as a retryable network failure.
func Transient(message string, cause error) *SyncError {
	return NewError(CodeTransient, message, cause)
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *SyncError, key string, value interface{}) *SyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf classifies err. Errors that carry no code are treated as transient
// so that an unknown failure is retried rather than dropped.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeTransient
	}

	return CodeTransient
}

// IsRetryable reports whether err should leave a mutation queued for another attempt.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeTransient, CodeOffline:
		return true
	default:
		return false
	}
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
