// Package coordinator is the sole dispatcher of tasks to workers.
//
// Every trigger (manual submission, the recurring scheduler, the event rule
// engine, the threshold monitor, the workflow engine) hands tasks to a
// [Coordinator] through [Coordinator.Submit]. Submit rejects a task when no
// active worker of its type is registered, otherwise it enqueues the task
// and returns immediately.
//
// A single dispatch goroutine, woken on submission and completion, pops the
// highest-priority ready task (FIFO within a priority band), picks a worker
// of the task's type round-robin, and invokes it on its own goroutine.
// Failures (returned error, panic, timeout) are retried after a fixed delay
// until the attempt limit, then the task fails terminally with its last
// error retained.
//
// Terminal tasks publish an event.TaskFinishedEvent, are written to the
// archive sink, and are kept in a bounded in-memory history.
package coordinator
