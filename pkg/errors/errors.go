// Package errors defines the sentinel errors shared by the engine and its
// transports, and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStoreUnavailable wraps any failure talking to the key-value store.
	// It is the only engine error that reaches ingestion callers.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDivisionUndefined is a zero denominator in a scoring formula.
	ErrDivisionUndefined = errors.New("division undefined")
	// ErrNumericDomain is a negative radicand or a non-finite result.
	ErrNumericDomain = errors.New("numeric domain error")
	// ErrEmptyInput marks no co-raters, no candidates or no active items.
	ErrEmptyInput = errors.New("empty input")

	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// AppError attaches a message and HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Store wraps err as ErrStoreUnavailable with the failing operation name.
// A nil err stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsFormula reports whether err is one of the locally absorbed formula
// failures.
func IsFormula(err error) bool {
	return errors.Is(err, ErrDivisionUndefined) || errors.Is(err, ErrNumericDomain)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
