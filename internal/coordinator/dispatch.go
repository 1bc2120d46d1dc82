package coordinator

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// candidate is a worker that can take a task right now.
type candidate struct {
	info worker.Info
	impl worker.Worker
}

// Start launches the dispatch loop. Tasks submitted before Start wait in
// the queue. It returns immediately; call Stop to shut down.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errors.ErrCoordinatorStopped
	}
	if c.started {
		return fmt.Errorf("coordinator: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatchLoop(ctx)
	}()

	c.logger.Info("coordinator started",
		"max_attempts", c.policy.MaxAttempts,
		"retry_delay", c.policy.Delay.String(),
		"task_timeout", c.taskTimeout.String())
	return nil
}

// Stop rejects new submissions, cancels tasks that have not been
// dispatched, cancels the context of running tasks, and waits for them to
// return or for ctx to expire. It is safe to call multiple times.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true

	var cancelled []task.Task
	for _, rec := range c.tasks {
		switch rec.Status {
		case task.StatusQueued:
			c.queue.Remove(rec.ID)
			rec.LastError = errors.ErrCoordinatorStopped.Error()
			cancelled = append(cancelled, c.finishLocked(rec, task.StatusCancelled))
		case task.StatusRetrying:
			cancelled = append(cancelled, c.finishLocked(rec, task.StatusCancelled))
		}
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, t := range cancelled {
		c.afterFinish(t)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("coordinator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

func (c *Coordinator) dispatchLoop(ctx context.Context) {
	for {
		c.safeDispatch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// safeDispatch drains every task the concurrency limits allow. A panic is
// logged and the loop continues on the next wake.
func (c *Coordinator) safeDispatch(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("dispatch panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	for ctx.Err() == nil {
		t, ok := c.queue.PopNext(c.limits.tryAcquire)
		if !ok {
			return
		}
		c.dispatch(ctx, t)
	}
}

// dispatch hands a popped task to a worker. The priority slot for t was
// taken by PopNext and is released when the task leaves running.
func (c *Coordinator) dispatch(ctx context.Context, t task.Task) {
	candidates := c.candidates(t)

	c.mu.Lock()
	rec, ok := c.tasks[t.ID]
	if !ok || rec.Status != task.StatusQueued {
		// cancelled between pop and dispatch
		c.mu.Unlock()
		c.limits.release(t.Priority)
		return
	}

	if len(candidates) == 0 {
		err := errors.NewRoutingError("no active worker at dispatch", errors.ErrNoWorkerForType).
			WithTaskID(rec.ID).
			WithWorkerType(rec.WorkerType).
			WithTenant(rec.TenantID)
		rec.LastError = err.Error()
		c.counters.RoutingFailures++
		done := c.finishLocked(rec, task.StatusFailed)
		c.mu.Unlock()

		c.limits.release(t.Priority)
		c.afterFinish(done)
		return
	}

	wt := worker.Type(rec.WorkerType)
	n := c.cursors[wt]
	pick := candidates[n%len(candidates)]
	c.cursors[wt] = n + 1

	rec.Status = task.StatusRunning
	rec.WorkerID = pick.info.ID
	rec.StartedAt = c.now()
	attempt := rec.Attempts + 1
	snapshot := rec.Clone()
	c.counters.Dispatched++
	c.wg.Add(1)
	c.mu.Unlock()

	c.registry.Touch(pick.info.ID)
	c.logger.Debug("task dispatched",
		"task_id", snapshot.ID,
		"worker_id", pick.info.ID,
		"worker_type", snapshot.WorkerType,
		"attempt", attempt)
	c.publish(event.NewTaskDispatchedEvent(snapshot.Clone(), pick.info.ID))

	go func() {
		defer c.wg.Done()
		res, err := c.invoke(ctx, pick, snapshot)
		c.complete(snapshot, pick.info, attempt, res, err)
	}()
}

// candidates returns the active workers that can take t, in registration
// order. A "capability" label narrows the set to workers declaring it.
func (c *Coordinator) candidates(t task.Task) []candidate {
	required := t.Label(task.LabelCapability)

	var out []candidate
	for _, info := range c.registry.ListByType(worker.Type(t.WorkerType)) {
		if required != "" && !info.HasCapability(required) {
			continue
		}
		impl, ok := c.registry.Impl(info.ID)
		if !ok {
			continue
		}
		out = append(out, candidate{info: info, impl: impl})
	}
	return out
}

type outcome struct {
	res task.Result
	err error
}

// invoke runs one attempt. A panic becomes an ErrWorkerPanic error. When a
// task timeout is set the attempt is abandoned at the deadline even if the
// worker ignores its context.
func (c *Coordinator) invoke(ctx context.Context, w candidate, t task.Task) (task.Result, error) {
	if c.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("worker panicked",
					"task_id", t.ID,
					"worker_id", w.info.ID,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)}
			}
		}()
		res, err := w.impl.Execute(ctx, t.Clone())
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return task.Result{}, errors.NewTimeoutError(fmt.Sprintf("executing task %s", t.ID), c.taskTimeout)
		}
		return task.Result{}, ctx.Err()
	}
}

// complete records the outcome of one attempt.
func (c *Coordinator) complete(t task.Task, w worker.Info, attempt int, res task.Result, execErr error) {
	c.limits.release(t.Priority)
	defer c.signal()

	c.mu.Lock()
	rec, ok := c.tasks[t.ID]
	if !ok {
		c.mu.Unlock()
		return
	}

	if execErr == nil {
		state := c.retries.RecordSuccess(t.ID)
		rec.Attempts = max(state.Attempts, attempt)
		rec.Output = maps.Clone(res.Output)
		done := c.finishLocked(rec, task.StatusSucceeded)
		c.mu.Unlock()
		c.afterFinish(done)
		return
	}

	state := c.retries.RecordFailure(t.ID, execErr.Error())
	rec.Attempts = max(state.Attempts, attempt)
	rec.LastError = execErr.Error()

	werr := errors.NewWorkerError("task attempt failed", execErr).
		WithTaskID(t.ID).
		WithWorker(w.ID, string(w.Type)).
		WithAttempt(rec.Attempts)

	if c.stopped {
		done := c.finishLocked(rec, task.StatusCancelled)
		c.mu.Unlock()
		c.logger.Warn("attempt interrupted by shutdown", "task_id", t.ID, "error", werr)
		c.afterFinish(done)
		return
	}

	if state.Exhausted() || rec.Attempts >= c.policy.MaxAttempts {
		done := c.finishLocked(rec, task.StatusFailed)
		c.mu.Unlock()
		c.logger.Warn("attempt failed, no attempts left",
			"task_id", t.ID,
			"worker_id", w.ID,
			"worker_type", string(w.Type),
			"attempt", done.Attempts,
			"error", werr)
		c.afterFinish(done)
		return
	}

	rec.Status = task.StatusRetrying
	rec.WorkerID = ""
	c.counters.Retried++
	delay := c.policy.Delay
	id := t.ID
	c.timers[id] = time.AfterFunc(delay, func() { c.requeue(id) })
	snapshot := rec.Clone()
	c.mu.Unlock()

	c.logger.Warn("attempt failed, will retry",
		"task_id", t.ID,
		"worker_id", w.ID,
		"worker_type", string(w.Type),
		"attempt", snapshot.Attempts,
		"max_attempts", c.policy.MaxAttempts,
		"retry_in", delay.String(),
		"error", werr)
	c.publish(event.NewTaskRetryingEvent(snapshot, snapshot.LastError, delay))
	c.metrics.recordRetried(context.Background(), snapshot)
}

// requeue puts a retrying task back on the queue once its delay passes.
func (c *Coordinator) requeue(id string) {
	c.mu.Lock()
	delete(c.timers, id)
	rec, ok := c.tasks[id]
	if !ok || rec.Status != task.StatusRetrying || c.stopped {
		c.mu.Unlock()
		return
	}
	rec.Status = task.StatusQueued
	if err := c.queue.Push(rec.Clone()); err != nil {
		rec.LastError = err.Error()
		done := c.finishLocked(rec, task.StatusFailed)
		c.mu.Unlock()
		c.afterFinish(done)
		return
	}
	c.mu.Unlock()

	c.logger.Debug("task requeued", "task_id", id)
	c.signal()
}
