// Package threshold watches rolling metric averages and submits a corrective
// task when one crosses its boundary.
//
// Data points arrive through [Monitor.Record] or an injected [Source]. Every
// tick averages each enabled threshold's (channel, metric) points inside the
// evaluation window and compares the mean against the boundary. A breach
// submits one task to the worker type that owns the metric, at the priority
// matching the threshold's severity. Points older than the retention period
// are pruned on the same tick.
//
// [Monitor.Evaluate] is pure: it reads the stored points and returns the
// breaches without submitting anything.
package threshold
