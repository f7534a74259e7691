package notify

import (
	"time"

	"github.com/okian/awardtally/internal/adapters/mq/queue"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueue replaces the default in-memory queue.
func WithQueue(q queue.Queue) Option {
	return func(d *Dispatcher) {
		if q != nil {
			d.queue = q
		}
	}
}

// WithWorkers sets how many delivery workers drain the queue.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithRelayInterval sets how often parked events are re-enqueued.
func WithRelayInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.relayInterval = interval
		}
	}
}

// WithMaxParked bounds the parked backlog; the oldest events are dropped first.
func WithMaxParked(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxParked = n
		}
	}
}

// WithDeliveryRetry tunes the per-event publish retry.
func WithDeliveryRetry(initial, max time.Duration, retries uint64) Option {
	return func(d *Dispatcher) {
		if initial > 0 {
			d.retryInitial = initial
		}
		if max > 0 {
			d.retryMax = max
		}
		d.maxRetries = retries
	}
}
