// Package errors provides error handling for WikiForge.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrProviderNotFound) {
//	    // handle missing provider
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Join      = crdb.Join
)

// Sentinel errors shared across WikiForge.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., generation already in progress)
	ErrConflict = New("resource conflict")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrAuth indicates the upstream provider rejected our credentials
	ErrAuth = New("authentication failed")

	// ErrRateLimited indicates the upstream provider throttled the request
	ErrRateLimited = New("rate limited")

	// ErrNetwork indicates the upstream provider could not be reached
	ErrNetwork = New("network failure")

	// ErrBadResponse indicates the upstream provider returned a response we
	// could not use (non-2xx status or malformed body)
	ErrBadResponse = New("bad provider response")

	// ErrProviderNotFound indicates no provider is registered under the
	// requested name
	ErrProviderNotFound = New("provider not found")

	// ErrNoAvailableProvider indicates no registered provider is currently
	// reachable
	ErrNoAvailableProvider = New("no available provider")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsTimeoutError checks if an error is or wraps ErrTimeout
func IsTimeoutError(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsAuthError checks if an error is or wraps ErrAuth
func IsAuthError(err error) bool {
	return err != nil && Is(err, ErrAuth)
}

// IsRateLimitedError checks if an error is or wraps ErrRateLimited
func IsRateLimitedError(err error) bool {
	return err != nil && Is(err, ErrRateLimited)
}

// IsRetryable reports whether the error is worth retrying against the same
// provider. Auth failures and malformed requests are permanent; everything
// transport-shaped is not.
func IsRetryable(err error) bool {
	return err != nil && IsAny(err, ErrNetwork, ErrTimeout, ErrRateLimited)
}

// WrapNotFound wraps an error as a not-found error with context
func WrapNotFound(err error, context string) error {
	return Wrap(Wrap(ErrNotFound, err.Error()), context)
}

// WrapConflict wraps an error as a conflict error with context
func WrapConflict(err error, context string) error {
	return Wrap(Wrap(ErrConflict, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Wrap(ErrConflict, Newf(format, args...).Error())
}

// NewBadResponseError creates a bad-response error with a formatted message
func NewBadResponseError(format string, args ...interface{}) error {
	return Wrap(ErrBadResponse, Newf(format, args...).Error())
}
