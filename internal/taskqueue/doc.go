// Package taskqueue provides the coordinator's ready queue: strict priority
// across bands, FIFO within a band.
//
// A critical task always dispatches before a high one, a high before a
// medium, and so on. Within a band tasks leave in the order they entered.
// Re-enqueued retries join the back of their band.
//
// PopNext accepts a predicate so callers can skip bands that are at their
// concurrency limit without losing FIFO order inside the bands they do take
// from.
//
// Usage:
//
//	q := taskqueue.New()
//	q.Push(t)
//
//	next, ok := q.PopNext(func(p task.Priority) bool {
//	    return limiter.Available(p)
//	})
//	if ok {
//	    // ... dispatch next ...
//	}
package taskqueue
