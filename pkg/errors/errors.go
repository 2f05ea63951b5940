package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes for pipeline steps. Callers match them with errors.Is.

var (
	// ErrStepFailed indicates an external command of a step exited non-zero
	ErrStepFailed = errors.New("step failed")

	// ErrTriggerRejected indicates the CI provider answered with a non-2xx status
	ErrTriggerRejected = errors.New("build trigger rejected")

	// ErrUnauthorized indicates the CI provider refused the bearer credential
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRepository indicates the working copy could not be queried
	ErrRepository = errors.New("repository query failed")

	// ErrInvalidConfig indicates configuration failed structural validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// maxBodyExcerpt bounds how much of a rejected response body is kept.
const maxBodyExcerpt = 512

// HTTPError carries the status and a body excerpt of a rejected request.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Is reports ErrTriggerRejected for every HTTPError and ErrUnauthorized for 401/403.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrTriggerRejected:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Retryable reports whether the status is worth another attempt (5xx only).
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500
}

// ExitError carries the exit code of a failed step command.
type ExitError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Command, e.ExitCode, ErrStepFailed)
}

func (e *ExitError) Is(target error) bool {
	return target == ErrStepFailed
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// RejectedError builds an HTTPError, truncating the body excerpt
func RejectedError(statusCode int, body []byte) error {
	if len(body) > maxBodyExcerpt {
		body = body[:maxBodyExcerpt]
	}
	return &HTTPError{StatusCode: statusCode, Body: string(body)}
}

// StepFailedError creates an exit error for a command of a step
func StepFailedError(command string, exitCode int, err error) error {
	return &ExitError{Command: command, ExitCode: exitCode, Err: err}
}

// RepositoryError wraps a working-copy query failure with context
func RepositoryError(query string, err error) error {
	return fmt.Errorf("%s: %w: %w", query, ErrRepository, err)
}

// InvalidConfigError creates an invalid config error with context
func InvalidConfigError(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidConfig)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// ExitCode returns the exit code carried by err, or 1 when none is known.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return exitErr.ExitCode
	}
	return 1
}
