// Package scaling recommends worker capacity changes per worker type from
// queue depth.
//
// The coordinator does not spawn workers itself. The advisor periodically
// compares each type's queued and in-flight tasks with its active workers
// and emits a [Decision]: scale up, scale down, or hold. Operators (or an
// external autoscaler) act on decisions through the event bus, the
// OnDecision callback, or GET /api/v1/scaling.
//
// The core types are:
//
//   - [Policy]: thresholds, worker limits and a per-type cooldown
//   - [Advisor]: samples load on a ticker and applies the policy
//   - [Decision]: the recommendation for one worker type
//
// # Usage
//
//	policy := scaling.NewPolicy(
//	    scaling.WithMaxWorkers(8),
//	    scaling.WithScaleUpThreshold(2),
//	    scaling.WithCooldownPeriod(5 * time.Minute),
//	)
//	advisor := scaling.NewAdvisor(func() map[string]scaling.Load {
//	    return scaling.LoadFrom(coord.Tasks(), coord.Workers())
//	}, policy, scaling.WithEventBus(bus))
//	go advisor.Run(ctx)
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package scaling
