package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProviderError is a transient failure from an external OCR/LLM provider.
// It terminates only the owning job, and only after the retry budget runs out.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s provider: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ParseError means a provider answered, but its output was not well-formed
// structured data. Retried once like a transient provider failure.
type ParseError struct {
	Provider    string
	RawResponse []byte
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s provider returned malformed output: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the error counts toward the one-retry budget.
// Timeouts are treated identically to provider errors.
func IsRetryable(err error) bool {
	var pe *ProviderError
	var pse *ParseError
	return errors.As(err, &pe) ||
		errors.As(err, &pse) ||
		errors.Is(err, context.DeadlineExceeded)
}

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrJobTerminal       = errors.New("job is terminal")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrCancelled         = errors.New("job cancelled")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func FailedPreconditionErrorf(format string, args ...interface{}) error {
	return status.Error(codes.FailedPrecondition, fmt.Sprintf(format, args...))
}
