// Package event provides a synchronous publish-subscribe bus and the typed
// notifications the scheduler emits.
//
// Components publish events; observers subscribe by exact type, by glob
// pattern ("task.*"), or to everything. Handlers run synchronously on the
// publisher's goroutine and are panic-isolated, so a misbehaving observer
// cannot take down the scheduler or starve other observers.
//
// Event types follow the "category.action" convention:
//
//	task.added, task.removed, task.completed, task.failed
//	plan.completed
//	worker.added, worker.removed, worker.unhealthy
//	scaling.action
//	error.occurred, error.resolved, error.escalated, error.critical
package event
