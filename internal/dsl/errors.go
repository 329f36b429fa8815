package dsl

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes usage errors.
type ErrorCode string

const (
	// ErrCodeNoRegistrar indicates And was called before Given, When,
	// Invariant or Then.
	ErrCodeNoRegistrar ErrorCode = "NO_REGISTRAR"

	// ErrCodeNoThen indicates a chain continuation without a prior Then.
	ErrCodeNoThen ErrorCode = "NO_THEN"

	// ErrCodeChainSealed indicates a clause was appended to a chain whose
	// test has already started.
	ErrCodeChainSealed ErrorCode = "CHAIN_SEALED"

	// ErrCodeBadStep indicates a step whose function shape is not accepted.
	ErrCodeBadStep ErrorCode = "BAD_STEP"

	// ErrCodeMissingStep indicates a registration without a step function.
	ErrCodeMissingStep ErrorCode = "MISSING_STEP"

	// ErrCodeAlreadyAssigned indicates a named Given whose context field
	// already holds a value.
	ErrCodeAlreadyAssigned ErrorCode = "ALREADY_ASSIGNED"

	// ErrCodeHostRunning indicates a registration after tests started.
	ErrCodeHostRunning ErrorCode = "HOST_RUNNING"
)

// UsageError reports misuse of the DSL. Registration-time usage errors are
// fatal to the enclosing spec; ErrCodeAlreadyAssigned surfaces at run time
// and fails only the test instance.
type UsageError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(code ErrorCode, format string, args ...any) *UsageError {
	return &UsageError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsUsageError returns true if err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// HasCode returns true if err is or wraps a *UsageError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}
