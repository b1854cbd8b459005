package engine

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError represents a structured failure detected while building or
// running a simulation.
//
// Runtime errors include:
//   - Unknown activity: a directive names a type the registry lacks
//   - Unconstructable activity: arguments cannot be decoded into parameters
//   - Invalid parameters: decoded parameters fail validation
//   - Steps exceeded: too many batches ran at a single instant
//
// RuntimeError is reported in Results.Failures and is never retried.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Directive identifies the schedule entry, when there is one.
	Directive string

	// ActivityType names the activity type involved.
	ActivityType string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownActivityType indicates the registry has no such type.
	ErrCodeUnknownActivityType RuntimeErrorCode = "UNKNOWN_ACTIVITY_TYPE"

	// ErrCodeUnconstructableActivity indicates the arguments could not be
	// turned into the type's parameters.
	ErrCodeUnconstructableActivity RuntimeErrorCode = "UNCONSTRUCTABLE_ACTIVITY_INSTANCE"

	// ErrCodeInvalidParameters indicates parameters failed validation.
	ErrCodeInvalidParameters RuntimeErrorCode = "INVALID_PARAMETERS"

	// ErrCodeTaskFailed indicates a task returned an error or panicked.
	ErrCodeTaskFailed RuntimeErrorCode = "TASK_FAILED"

	// ErrCodeStepsExceeded indicates the same-instant step quota ran out.
	ErrCodeStepsExceeded RuntimeErrorCode = "STEPS_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Directive != "" && e.ActivityType != "" {
		return fmt.Sprintf("%s: %s (directive=%s, type=%s)", e.Code, e.Message, e.Directive, e.ActivityType)
	}
	if e.ActivityType != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.ActivityType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownActivityType returns true if the error reports an unregistered
// activity type. Uses errors.As to handle wrapped errors.
func IsUnknownActivityType(err error) bool {
	return hasCode(err, ErrCodeUnknownActivityType)
}

// IsUnconstructableActivity returns true if the error reports arguments
// that could not be decoded. Uses errors.As to handle wrapped errors.
func IsUnconstructableActivity(err error) bool {
	return hasCode(err, ErrCodeUnconstructableActivity)
}

// IsParameterError returns true if the error carries parameter validation
// messages.
func IsParameterError(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

// IsQuotaError returns true if the error is a step quota error.
// Matches both RuntimeError with ErrCodeStepsExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeStepsExceeded) {
		return true
	}
	return IsStepsExceededError(err)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// ParameterError lists every validation failure for one activity
// instance. Messages are reported together rather than stopping at the
// first violation.
type ParameterError struct {
	ActivityType string
	Messages     []string
}

// Error implements the error interface.
func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.ActivityType, strings.Join(e.Messages, "; "))
}

// ActivityError wraps the error a task finished with.
type ActivityError struct {
	// Task is the task's path, e.g. "obs-1/slew".
	Task string

	// Err is what the task returned, or the recovered panic.
	Err error
}

// Error implements the error interface.
func (e *ActivityError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

// Unwrap returns the task's error.
func (e *ActivityError) Unwrap() error { return e.Err }

// IsActivityError returns true if the error came from a failed task.
func IsActivityError(err error) bool {
	var ae *ActivityError
	return errors.As(err, &ae)
}
