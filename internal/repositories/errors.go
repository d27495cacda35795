package repositories

import (
	"errors"
	"fmt"
)

// IsNotFound reports whether err carries a not-found RepositoryError.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// DuplicateError is implemented by conflicts that can tell a unique-index violation apart from
// deadlocks, lock timeouts and foreign-key failures.
type DuplicateError interface {
	IsDuplicate() bool
}

// IsDuplicate reports whether err is a unique-index violation.
func IsDuplicate(err error) bool {
	var dup DuplicateError
	return errors.As(err, &dup) && dup.IsDuplicate()
}

// StockError reports that a decrement would take a product below zero.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// IsConflict lets StockError satisfy RepositoryError.
func (e *StockError) IsConflict() bool    { return true }
func (e *StockError) IsNotFound() bool    { return false }
func (e *StockError) IsUnavailable() bool { return false }

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	CounterErrorUnknown      CounterErrorCode = "counter_unknown"
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
)

// CounterError wraps counter-specific failures with machine readable codes.
type CounterError struct {
	Op      string
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}
