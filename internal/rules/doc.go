// Package rules turns observed platform events into coordinator tasks.
//
// Events arrive through [Engine.SubmitEvent] or an injected [Source] and sit
// in an unprocessed queue until the next tick. Each tick walks the queue and
// matches every event against the enabled rules in insertion order. The first
// rule whose kind matches and whose [Conditions] hold wins; its actions become
// task submissions unless the rule already fired for the same kind and
// channel within its cooldown.
//
// Condition evaluation fails closed: a missing or non-numeric field, or a
// panic while evaluating, counts as a non-match and is logged.
//
// # Thread Safety
//
// Engine is safe for concurrent use. No lock is held while submitting tasks
// or publishing events.
package rules
