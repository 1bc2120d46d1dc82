package scaling

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
)

const defaultTickInterval = 30 * time.Second

// LoadSource reports the current load per worker type.
type LoadSource func() map[string]Load

// Advisor samples load on a ticker and applies a Policy to every worker type.
type Advisor struct {
	source       LoadSource
	policy       *Policy
	events       *event.Bus
	logger       *logging.Logger
	tickInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	latest   map[string]Decision
	handlers []func(Decision)
}

// AdvisorOption configures an Advisor.
type AdvisorOption func(*Advisor)

// WithEventBus publishes a ScalingAdvisedEvent for every non-none decision.
func WithEventBus(b *event.Bus) AdvisorOption {
	return func(a *Advisor) { a.events = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) AdvisorOption {
	return func(a *Advisor) { a.logger = l }
}

// WithTickInterval sets the Run loop cadence.
func WithTickInterval(d time.Duration) AdvisorOption {
	return func(a *Advisor) { a.tickInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AdvisorOption {
	return func(a *Advisor) { a.now = now }
}

// NewAdvisor creates an Advisor that reads load from source. A nil policy
// gets the defaults.
func NewAdvisor(source LoadSource, policy *Policy, opts ...AdvisorOption) *Advisor {
	if policy == nil {
		policy = NewPolicy()
	}
	a := &Advisor{
		source:       source,
		policy:       policy,
		logger:       logging.NopLogger(),
		tickInterval: defaultTickInterval,
		now:          time.Now,
		latest:       make(map[string]Decision),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tickInterval <= 0 {
		a.tickInterval = defaultTickInterval
	}
	a.logger = a.logger.WithComponent("scaling")
	return a
}

// OnDecision registers a callback that is invoked when a non-none scaling
// decision is made. Multiple handlers may be registered.
func (a *Advisor) OnDecision(handler func(Decision)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// Tick evaluates every worker type at now and returns the non-none
// decisions, ordered by worker type.
func (a *Advisor) Tick(now time.Time) []Decision {
	loads := a.source()
	types := slices.Sorted(maps.Keys(loads))

	decisions := make([]Decision, 0, len(types))
	for _, wt := range types {
		decisions = append(decisions, a.policy.Evaluate(wt, loads[wt], now))
	}

	a.mu.Lock()
	clear(a.latest)
	for _, d := range decisions {
		a.latest[d.WorkerType] = d
	}
	handlers := slices.Clone(a.handlers)
	a.mu.Unlock()

	var advised []Decision
	for _, d := range decisions {
		if d.Action == ActionNone {
			continue
		}
		advised = append(advised, d)
		a.logger.Info("scaling advised",
			"worker_type", d.WorkerType,
			"action", d.Action.String(),
			"delta", d.Delta,
			"workers", d.Load.Workers,
			"queued", d.Load.Queued,
			"reason", d.Reason)
		if a.events != nil {
			a.events.Publish(event.NewScalingAdvisedEvent(d.WorkerType, d.Action.String(), d.Delta, d.Load.Workers, d.Reason))
		}
		for _, h := range handlers {
			h(d)
		}
	}
	return advised
}

// Latest returns the most recent decision for every worker type seen in the
// last tick, ordered by worker type.
func (a *Advisor) Latest() []Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Decision, 0, len(a.latest))
	for _, wt := range slices.Sorted(maps.Keys(a.latest)) {
		out = append(out, a.latest[wt])
	}
	return out
}

// Run ticks every tick interval until ctx is canceled.
func (a *Advisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	a.logger.Info("scaling advisor started", "tick_interval", a.tickInterval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.safeTick()
		}
	}
}

func (a *Advisor) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("scaling tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	a.Tick(a.now())
}
