// Package errors defines structured error types and predefined errors for the
// Sentinel risk engine. Errors carry a machine-readable code so the per-event
// consumer boundary can distinguish transient infrastructure failures from
// data-integrity drops.
package errors

import (
	"fmt"

	"github.com/aimstors/sentinel/pkg/constants"
)

// Error codes used across the engine.
const (
	ErrCodeInternal          constants.ErrorCode = "internal_error"
	ErrCodeNotFound          constants.ErrorCode = "not_found"
	ErrCodeCache             constants.ErrorCode = "cache_error"
	ErrCodeDatabase          constants.ErrorCode = "database_error"
	ErrCodeBus               constants.ErrorCode = "bus_error"
	ErrCodeOracleUnavailable constants.ErrorCode = "oracle_unavailable"
	ErrCodeInvalidSignal     constants.ErrorCode = "invalid_signal"
	ErrCodeInvalidConfig     constants.ErrorCode = "invalid_config"
)

// AppError represents a structured application error.
type AppError struct {
	Code    constants.ErrorCode
	Message string
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches two AppErrors by code so predefined errors can be compared
// after WithError has attached a cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithError returns a copy of the error with the given cause attached.
// The predefined error values stay immutable.
func (e *AppError) WithError(cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, cause: cause}
}

// WithMessagef returns a copy of the error with a formatted message.
func (e *AppError) WithMessagef(format string, args ...interface{}) *AppError {
	return &AppError{Code: e.Code, Message: fmt.Sprintf(format, args...), cause: e.cause}
}

// New creates a new AppError with the given code and message.
func New(code constants.ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Predefined errors.
var (
	// ErrInternal is the generic fallback for unexpected failures.
	ErrInternal = New(ErrCodeInternal, "internal error")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = New(ErrCodeNotFound, "record not found")

	// ErrCache indicates a counter-store operation failed.
	ErrCache = New(ErrCodeCache, "cache operation failed")

	// ErrDatabase indicates a durable-store operation failed.
	ErrDatabase = New(ErrCodeDatabase, "database operation failed")

	// ErrBus indicates a message-bus operation failed.
	ErrBus = New(ErrCodeBus, "message bus operation failed")

	// ErrOracleUnavailable indicates the scoring oracle timed out or refused.
	// Callers recover through the heuristic fallback.
	ErrOracleUnavailable = New(ErrCodeOracleUnavailable, "scoring oracle unavailable")

	// ErrInvalidSignal indicates a signal that cannot be acted on safely,
	// e.g. a risk signal referencing a credential that does not exist.
	ErrInvalidSignal = New(ErrCodeInvalidSignal, "invalid risk signal")

	// ErrInvalidConfig indicates the loaded configuration failed validation.
	ErrInvalidConfig = New(ErrCodeInvalidConfig, "invalid configuration")
)
