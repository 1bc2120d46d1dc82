package scaling

import (
	"fmt"
	"sync"
	"time"
)

// Default policy values.
const (
	defaultMinWorkers         = 1
	defaultMaxWorkers         = 8
	defaultScaleUpThreshold   = 2
	defaultScaleDownThreshold = 0
	defaultCooldownPeriod     = 5 * time.Minute
)

// Option configures a Policy.
type Option func(*Policy)

// WithMinWorkers sets the number of workers per type scale-down never goes below.
func WithMinWorkers(n int) Option {
	return func(p *Policy) { p.minWorkers = n }
}

// WithMaxWorkers sets the maximum number of workers per type.
func WithMaxWorkers(n int) Option {
	return func(p *Policy) { p.maxWorkers = n }
}

// WithScaleUpThreshold sets the queued task count above which to scale up.
// When queued tasks exceed this threshold and queued > in-flight, scaling up
// is recommended.
func WithScaleUpThreshold(n int) Option {
	return func(p *Policy) { p.scaleUpThreshold = n }
}

// WithScaleDownThreshold sets the in-flight count at or below which an idle
// type may scale down.
func WithScaleDownThreshold(n int) Option {
	return func(p *Policy) { p.scaleDownThreshold = n }
}

// WithCooldownPeriod sets the minimum time between non-none decisions for
// the same worker type.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// Policy defines the rules for capacity decisions.
// It is safe for concurrent use.
type Policy struct {
	mu                 sync.Mutex
	minWorkers         int
	maxWorkers         int
	scaleUpThreshold   int
	scaleDownThreshold int
	cooldownPeriod     time.Duration
	lastDecision       map[string]time.Time
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		minWorkers:         defaultMinWorkers,
		maxWorkers:         defaultMaxWorkers,
		scaleUpThreshold:   defaultScaleUpThreshold,
		scaleDownThreshold: defaultScaleDownThreshold,
		cooldownPeriod:     defaultCooldownPeriod,
		lastDecision:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate inspects one worker type's load at now and returns a decision.
// The cooldown is tracked per worker type.
func (p *Policy) Evaluate(workerType string, load Load, now time.Time) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := Decision{WorkerType: workerType, Action: ActionNone, Load: load, At: now}

	if last, ok := p.lastDecision[workerType]; ok && now.Sub(last) < p.cooldownPeriod {
		d.Reason = "cooldown period active"
		return d
	}

	// Nothing can serve this type; ask for the floor regardless of threshold.
	if load.Workers == 0 && load.Queued > 0 {
		delta := max(p.minWorkers, 1)
		if delta > p.maxWorkers {
			delta = p.maxWorkers
		}
		if delta > 0 {
			p.lastDecision[workerType] = now
			d.Action = ActionScaleUp
			d.Delta = delta
			d.Reason = fmt.Sprintf("%d queued tasks with no active workers", load.Queued)
			return d
		}
	}

	// Scale up: queued tasks exceed threshold and there's more waiting than running
	if load.Queued > p.scaleUpThreshold && load.Queued > load.InFlight && load.Workers < p.maxWorkers {
		delta := load.Queued - load.InFlight
		// Don't exceed max workers
		if load.Workers+delta > p.maxWorkers {
			delta = p.maxWorkers - load.Workers
		}
		if delta > 0 {
			p.lastDecision[workerType] = now
			d.Action = ActionScaleUp
			d.Delta = delta
			d.Reason = fmt.Sprintf("%d queued tasks with %d in flight (threshold: %d)", load.Queued, load.InFlight, p.scaleUpThreshold)
			return d
		}
	}

	// Scale down: no queued work and few running tasks
	if load.Queued == 0 && load.InFlight <= p.scaleDownThreshold && load.Workers > p.minWorkers {
		p.lastDecision[workerType] = now
		d.Action = ActionScaleDown
		// one at a time
		d.Delta = -1
		d.Reason = fmt.Sprintf("no queued tasks with %d in flight (threshold: %d)", load.InFlight, p.scaleDownThreshold)
		return d
	}

	d.Reason = "no scaling needed"
	return d
}

// Reset clears the cooldown for every worker type.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.lastDecision)
}
