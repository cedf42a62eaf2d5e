// Package errors provides centralized error definitions and handling
// utilities for the scheduler. It defines domain-specific errors, semantic
// error types, error constructors with context wrapping, and classification
// helpers.
//
// Creating errors:
//
//	err := errors.NewPlannerError("replan failed", errors.ErrDependencyCycle)
//	err = err.WithTaskID("ray-march-7")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTaskNotFound) { ... }
//	var pe *errors.PlannerError
//	if errors.As(err, &pe) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo Severity = iota
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Task and planner sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found in the registry.
	ErrTaskNotFound = New("task not found")
	// ErrTaskExists indicates a task with the same ID is already registered.
	ErrTaskExists = New("task already exists")
	// ErrDependencyCycle indicates a circular dependency in the task set.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrPlannerStopped indicates an operation that requires a running planner.
	ErrPlannerStopped = New("planner is not running")
	// ErrPlannerRunning indicates a start on an already running planner.
	ErrPlannerRunning = New("planner already running")
	// ErrScheduleEmpty indicates there is no planned task to execute.
	ErrScheduleEmpty = New("schedule is empty")
	// ErrNoFeasibleSolution indicates the optimizer found no feasible assignment.
	ErrNoFeasibleSolution = New("no feasible solution")
)

// Worker pool sentinel errors
var (
	// ErrWorkerNotFound indicates that a worker could not be found in the pool.
	ErrWorkerNotFound = New("worker not found")
	// ErrPoolNotFound indicates that a resource pool name is unknown.
	ErrPoolNotFound = New("resource pool not found")
	// ErrPoolExhausted indicates no resource pool can supply another worker.
	ErrPoolExhausted = New("resource pools exhausted")
	// ErrNoWorkers indicates an assignment was requested with no workers available.
	ErrNoWorkers = New("no workers available")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrRecoveryExhausted indicates all recovery strategies were exhausted.
	ErrRecoveryExhausted = New("recovery strategies exhausted")
	// ErrRecoveryDisabled indicates the recovery subsystem is disabled.
	ErrRecoveryDisabled = New("recovery is disabled")
)

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// PlannerError represents errors raised by the task planner.
type PlannerError struct {
	baseError
	TaskID string
}

// NewPlannerError creates a new PlannerError.
func NewPlannerError(message string, cause error) *PlannerError {
	return &PlannerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *PlannerError) WithTaskID(id string) *PlannerError {
	e.TaskID = id
	return e
}

// WithSeverity sets the error severity.
func (e *PlannerError) WithSeverity(s Severity) *PlannerError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PlannerError) WithRetryable(r bool) *PlannerError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PlannerError) Error() string {
	prefix := "planner error"
	if e.TaskID != "" {
		prefix = fmt.Sprintf("planner error [task=%s]", e.TaskID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PlannerError) Is(target error) bool {
	if _, ok := target.(*PlannerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PoolError represents errors raised by the worker pool and scaler.
type PoolError struct {
	baseError
	WorkerID string
	PoolName string
}

// NewPoolError creates a new PoolError.
func NewPoolError(message string, cause error) *PoolError {
	return &PoolError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithWorkerID adds a worker ID to the error context.
func (e *PoolError) WithWorkerID(id string) *PoolError {
	e.WorkerID = id
	return e
}

// WithPoolName adds a resource pool name to the error context.
func (e *PoolError) WithPoolName(name string) *PoolError {
	e.PoolName = name
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PoolError) WithRetryable(r bool) *PoolError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PoolError) Error() string {
	var parts []string
	if e.WorkerID != "" {
		parts = append(parts, fmt.Sprintf("worker=%s", e.WorkerID))
	}
	if e.PoolName != "" {
		parts = append(parts, fmt.Sprintf("pool=%s", e.PoolName))
	}
	prefix := "pool error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("pool error [%s]", strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PoolError) Is(target error) bool {
	if _, ok := target.(*PoolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError is a semantic error for a missing resource. Messages are
// limited to resource kind and identifier so they stay safe to surface.
type NotFoundError struct {
	baseError
	Kind string
	ID   string
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s %q not found", kind, id),
			severity: SeverityError,
		},
		Kind: kind,
		ID:   id,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	switch e.Kind {
	case "task":
		return target == ErrTaskNotFound
	case "worker":
		return target == ErrWorkerNotFound
	case "resource pool":
		return target == ErrPoolNotFound
	}
	return false
}

// IsRetryable reports whether err is transient and worth retrying.
func IsRetryable(err error) bool {
	type retryable interface{ IsRetryable() bool }
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// SeverityOf returns the severity of err, defaulting to SeverityError for
// plain errors.
func SeverityOf(err error) Severity {
	type leveled interface{ Severity() Severity }
	var l leveled
	if errors.As(err, &l) {
		return l.Severity()
	}
	return SeverityError
}
