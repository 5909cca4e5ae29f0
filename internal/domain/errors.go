// Package domain defines core types, interfaces, and errors for the
// query optimization engine.
package domain

import "fmt"

// ValidationError indicates a query was rejected before touching the
// target database.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ExecutionError indicates the target database failed to run a statement.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// SandboxError indicates a sandbox schema operation failed.
type SandboxError struct {
	Message string
}

func (e *SandboxError) Error() string { return e.Message }

// AdvisorError indicates every advisor provider failed or returned
// output that could not be parsed.
type AdvisorError struct {
	Message string
}

func (e *AdvisorError) Error() string { return e.Message }

// TimeoutError indicates a session or statement deadline elapsed.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrSandbox creates a SandboxError with a formatted message.
func ErrSandbox(format string, args ...interface{}) *SandboxError {
	return &SandboxError{Message: fmt.Sprintf(format, args...)}
}

// ErrAdvisor creates an AdvisorError with a formatted message.
func ErrAdvisor(format string, args ...interface{}) *AdvisorError {
	return &AdvisorError{Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates a TimeoutError with a formatted message.
func ErrTimeout(format string, args ...interface{}) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
