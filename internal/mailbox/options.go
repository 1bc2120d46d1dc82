package mailbox

import (
	"time"

	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// Option configures a Bus.
type Option func(*Bus)

// WithEventBus attaches an event bus. Delivery failures and expired
// handoffs are published to it.
func WithEventBus(bus *event.Bus) Option {
	return func(b *Bus) {
		b.events = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHandoffTTL sets how long a proposed handoff waits to be accepted.
func WithHandoffTTL(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handoffTTL = d
		}
	}
}

// WithShareTTL sets how long shared data stays retrievable.
func WithShareTTL(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.shareTTL = d
		}
	}
}

// WithSweepInterval sets how often Run prunes expired handoffs and shares.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.sweepInterval = d
		}
	}
}

// WithHistoryLimit bounds the recent-message log. Zero disables it.
func WithHistoryLimit(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.historyLimit = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}
