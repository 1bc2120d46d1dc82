// Package scheduler fires task templates on a recurring schedule.
//
// A [Template] pairs a fixed task (worker type, tenant, payload, priority)
// with a [Recurrence]. The [Scheduler] keeps each enabled template's
// NextRun at the earliest instant strictly after the last computation and,
// on every tick, submits each due template to the coordinator with origin
// "scheduled". A disabled template has no NextRun and never fires.
package scheduler
