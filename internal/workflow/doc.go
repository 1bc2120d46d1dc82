// Package workflow runs ordered multi-step executions on top of the task
// coordinator.
//
// A [Definition] is a list of [Step]s, each naming a worker type. An
// [Execution] carries a context map from step to step: a step's Inputs pick
// (and optionally rename) context keys for its task payload, and its Outputs
// name the result fields merged back into the context once the task
// succeeds. Step completion is observed through [event.TaskFinishedEvent];
// tasks are correlated by the workflow.execution_id and workflow.step labels.
//
// A failed step fails the execution and no further steps run. A cancelled
// execution ignores any late step outcome.
package workflow
