// Package event is Conductor's in-process notification bus.
//
// The coordinator, scheduler, rule engine, threshold monitor, workflow
// engine, communication bus and scaling advisor publish lifecycle events
// here. The workflow engine advances executions by subscribing to
// [TaskFinishedEvent]; the hub counts everything through [Bus.Published].
//
// Handlers run synchronously on the publishing goroutine. A handler that
// panics is logged and skipped. Publishers must not hold locks that a
// handler could need.
//
//	bus := event.NewBus(event.WithLogger(logger))
//	bus.Subscribe(event.TypeTaskFinished, func(e event.Event) {
//	    finished := e.(event.TaskFinishedEvent)
//	    logger.Info("task done", "task_id", finished.Task.ID)
//	})
//
// Event types are named "category.action":
//   - worker.registered, worker.deregistered
//   - task.submitted, task.dispatched, task.retrying, task.finished
//   - schedule.fired, rule.fired, rule.suppressed, threshold.breached
//   - workflow.started, workflow.step_changed, workflow.finished
//   - bus.delivery_failed, bus.handoff_expired
//   - scaling.advised
package event
