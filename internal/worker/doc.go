// Package worker defines the worker contract and the registry of live workers.
//
// A [Worker] is an opaque executor for one [Type] of work. The coordinator
// only needs to know a worker's identity, type and declared capabilities;
// what Execute does with a task payload (calling a generative model,
// scraping a channel, building a report) is entirely up to the worker.
//
// The [Registry] tracks which workers are live. Deregistration is soft: the
// record is kept, marked inactive, and excluded from lookups so dashboards
// can still show it.
//
// # Thread Safety
//
// [Registry] is safe for concurrent use. Worker implementations must
// tolerate concurrent Execute calls because the coordinator does not
// serialize dispatches to the same worker.
package worker
