package common

import (
	"errors"
	"fmt"
)

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

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeInput      = "INPUT_ERROR"
	CodeStorage    = "STORAGE_ERROR"
	CodeOracle     = "ORACLE_ERROR"
	CodeConsistent = "CONSISTENCY_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrStorage      = errors.New("storage error")
	ErrValidation   = errors.New("validation failed")
	ErrOracle       = errors.New("oracle call failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ExitCode maps an error to a process exit status for the CLI.
func ExitCode(err error) int {
	var ae *AppError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ae) && ae.Code == CodeConfig, errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return 2
	case errors.Is(err, ErrNotFound):
		return 3
	default:
		return 1
	}
}
