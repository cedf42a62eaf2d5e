// Package event defines the notification types emitted by the scheduler.
// These events let observers (dashboards, the worker pool, recovery) react
// to planner and pool activity without direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.added", "worker.unhealthy").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskAddedEvent is emitted when a task enters the planner registry.
type TaskAddedEvent struct {
	baseEvent
	TaskID   string  // Unique identifier for the task
	Priority float64 // Caller-assigned priority
}

// NewTaskAddedEvent creates a TaskAddedEvent.
func NewTaskAddedEvent(taskID string, priority float64) TaskAddedEvent {
	return TaskAddedEvent{
		baseEvent: newBaseEvent("task.added"),
		TaskID:    taskID,
		Priority:  priority,
	}
}

// TaskRemovedEvent is emitted when a task leaves the planner registry.
type TaskRemovedEvent struct {
	baseEvent
	TaskID string
	Reason string // "removed", "completed"
}

// NewTaskRemovedEvent creates a TaskRemovedEvent.
func NewTaskRemovedEvent(taskID, reason string) TaskRemovedEvent {
	return TaskRemovedEvent{
		baseEvent: newBaseEvent("task.removed"),
		TaskID:    taskID,
		Reason:    reason,
	}
}

// TaskCompletedEvent is emitted when a task finishes executing successfully.
type TaskCompletedEvent struct {
	baseEvent
	TaskID   string
	Duration time.Duration // Wall-clock execution time
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID string, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent("task.completed"),
		TaskID:    taskID,
		Duration:  duration,
	}
}

// TaskFailedEvent is emitted when a task's executor reports failure.
type TaskFailedEvent struct {
	baseEvent
	TaskID string
	Error  string // Executor error message
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(taskID, errMsg string) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent: newBaseEvent("task.failed"),
		TaskID:    taskID,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Planning Events
// -----------------------------------------------------------------------------

// PlanCompletedEvent is emitted when PlanOptimal finishes.
type PlanCompletedEvent struct {
	baseEvent
	TaskCount  int           // Tasks included in the schedule
	TotalTime  time.Duration // Estimated schedule makespan
	Efficiency float64       // Sum of durations / total time
	Advantage  float64       // Relative gain over the serial baseline
}

// NewPlanCompletedEvent creates a PlanCompletedEvent.
func NewPlanCompletedEvent(taskCount int, totalTime time.Duration, efficiency, advantage float64) PlanCompletedEvent {
	return PlanCompletedEvent{
		baseEvent:  newBaseEvent("plan.completed"),
		TaskCount:  taskCount,
		TotalTime:  totalTime,
		Efficiency: efficiency,
		Advantage:  advantage,
	}
}

// -----------------------------------------------------------------------------
// Worker Events
// -----------------------------------------------------------------------------

// WorkerAddedEvent is emitted when the scaler adds a worker.
type WorkerAddedEvent struct {
	baseEvent
	WorkerID string
	PoolName string // Resource pool the worker was drawn from
}

// NewWorkerAddedEvent creates a WorkerAddedEvent.
func NewWorkerAddedEvent(workerID, poolName string) WorkerAddedEvent {
	return WorkerAddedEvent{
		baseEvent: newBaseEvent("worker.added"),
		WorkerID:  workerID,
		PoolName:  poolName,
	}
}

// WorkerRemovedEvent is emitted when the scaler removes a worker.
type WorkerRemovedEvent struct {
	baseEvent
	WorkerID string
	Reason   string // "scale_down", "unhealthy", "target"
}

// NewWorkerRemovedEvent creates a WorkerRemovedEvent.
func NewWorkerRemovedEvent(workerID, reason string) WorkerRemovedEvent {
	return WorkerRemovedEvent{
		baseEvent: newBaseEvent("worker.removed"),
		WorkerID:  workerID,
		Reason:    reason,
	}
}

// WorkerUnhealthyEvent is emitted when a health pass marks a worker failed.
type WorkerUnhealthyEvent struct {
	baseEvent
	WorkerID string
	Reason   string // "stale_heartbeat", "failure_rate"
}

// NewWorkerUnhealthyEvent creates a WorkerUnhealthyEvent.
func NewWorkerUnhealthyEvent(workerID, reason string) WorkerUnhealthyEvent {
	return WorkerUnhealthyEvent{
		baseEvent: newBaseEvent("worker.unhealthy"),
		WorkerID:  workerID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Scaling Events
// -----------------------------------------------------------------------------

// ScalingActionEvent is emitted when the scaler adds or removes workers.
type ScalingActionEvent struct {
	baseEvent
	Action      string // "scale_up", "scale_down"
	Delta       int    // Workers added (positive) or removed (negative)
	Reason      string // Human-readable explanation
	WorkerCount int    // Worker count after the action
}

// NewScalingActionEvent creates a ScalingActionEvent.
func NewScalingActionEvent(action string, delta int, reason string, workerCount int) ScalingActionEvent {
	return ScalingActionEvent{
		baseEvent:   newBaseEvent("scaling.action"),
		Action:      action,
		Delta:       delta,
		Reason:      reason,
		WorkerCount: workerCount,
	}
}

// -----------------------------------------------------------------------------
// Error / Recovery Events
// -----------------------------------------------------------------------------

// ErrorOccurredEvent is emitted when the recovery subsystem records a failure.
type ErrorOccurredEvent struct {
	baseEvent
	FailureID string // Unique failure record ID
	Kind      string // Failure kind (see recovery.FailureKind)
	Severity  string
	TaskID    string // Affected task, if any
}

// NewErrorOccurredEvent creates an ErrorOccurredEvent.
func NewErrorOccurredEvent(failureID, kind, severity, taskID string) ErrorOccurredEvent {
	return ErrorOccurredEvent{
		baseEvent: newBaseEvent("error.occurred"),
		FailureID: failureID,
		Kind:      kind,
		Severity:  severity,
		TaskID:    taskID,
	}
}

// ErrorResolvedEvent is emitted when a recovery strategy succeeds.
type ErrorResolvedEvent struct {
	baseEvent
	FailureID  string
	Kind       string
	StrategyID string // Strategy that resolved the failure
	Attempts   int    // Attempts consumed across all strategies
}

// NewErrorResolvedEvent creates an ErrorResolvedEvent.
func NewErrorResolvedEvent(failureID, kind, strategyID string, attempts int) ErrorResolvedEvent {
	return ErrorResolvedEvent{
		baseEvent:  newBaseEvent("error.resolved"),
		FailureID:  failureID,
		Kind:       kind,
		StrategyID: strategyID,
		Attempts:   attempts,
	}
}

// ErrorEscalatedEvent is emitted when all recovery strategies are exhausted.
// Critical-severity failures also produce a CriticalAlertEvent.
type ErrorEscalatedEvent struct {
	baseEvent
	FailureID string
	Kind      string
	Severity  string
}

// NewErrorEscalatedEvent creates an ErrorEscalatedEvent.
func NewErrorEscalatedEvent(failureID, kind, severity string) ErrorEscalatedEvent {
	return ErrorEscalatedEvent{
		baseEvent: newBaseEvent("error.escalated"),
		FailureID: failureID,
		Kind:      kind,
		Severity:  severity,
	}
}

// CriticalAlertEvent is the distinguished notification raised when a
// critical failure escalates. The core never terminates the process; it
// only raises this event.
type CriticalAlertEvent struct {
	baseEvent
	FailureID string
	Kind      string
	Message   string
}

// NewCriticalAlertEvent creates a CriticalAlertEvent.
func NewCriticalAlertEvent(failureID, kind, message string) CriticalAlertEvent {
	return CriticalAlertEvent{
		baseEvent: newBaseEvent("error.critical"),
		FailureID: failureID,
		Kind:      kind,
		Message:   message,
	}
}
