// Package archive writes terminal tasks and workflow executions to a
// best-effort history sink.
//
// Archival is write-only: nothing in the orchestration core reads a record
// back to rebuild state. A failing sink is logged by the caller and never
// changes a task's outcome.
//
// Sinks:
//   - [LogSink] emits one structured log line per record
//   - [RedisSink] keeps a capped list per record kind (LPUSH + LTRIM)
//   - [PostgresSink] upserts into a single archive table through pgxpool
//   - [Nop] discards everything
//
// [Open] builds the sink selected by config.ArchiveConfig.Driver.
package archive
