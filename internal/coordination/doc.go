// Package coordination provides a Hub that wires every Conductor component
// together for one process.
//
// The Hub owns:
//
//   - the worker Registry and the task Coordinator (the only dispatcher)
//   - the communication Bus between workers
//   - the triggers: recurring Scheduler, event rule Engine, threshold Monitor
//   - the workflow Engine
//   - the archive Sink for finished tasks and executions
//
// Every periodic loop runs in its own goroutine under one errgroup.
//
// Usage:
//
//	hub, err := coordination.NewHub(ctx, cfg,
//	    coordination.WithLogger(logger),
//	    coordination.WithWorkers(myWorker),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := hub.Start(ctx); err != nil {
//	    return err
//	}
//	defer hub.Stop(context.Background())
//
//	id, err := hub.Coordinator().Submit(ctx, task.Task{...})
package coordination
