package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/awardtally/internal/adapters/mq/queue"
	"github.com/okian/awardtally/internal/adapters/mq/worker"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/logger"
	"github.com/okian/awardtally/pkg/metrics"
)

const (
	defaultWorkers       = 2
	defaultRelayInterval = 5 * time.Second
	defaultMaxParked     = 10000
)

// Dispatcher hands certificate events to a worker pool that publishes them
// with retry. Events that exhaust their retries, or arrive while the queue is
// full, are parked and re-enqueued by a relay loop.
type Dispatcher struct {
	publisher Publisher
	queue     queue.Queue
	pool      *worker.Pool
	workers   int

	relayInterval time.Duration
	maxParked     int
	retryInitial  time.Duration
	retryMax      time.Duration
	maxRetries    uint64

	mu      sync.Mutex
	parked  []model.CertificateEvent
	started bool
	stopped bool
	stop    chan struct{}
	relayWG sync.WaitGroup

	logger logger.Logger
}

// NewDispatcher creates a dispatcher publishing through pub.
func NewDispatcher(pub Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publisher:     pub,
		workers:       defaultWorkers,
		relayInterval: defaultRelayInterval,
		maxParked:     defaultMaxParked,
		retryInitial:  100 * time.Millisecond,
		retryMax:      2 * time.Second,
		maxRetries:    5,
		stop:          make(chan struct{}),
		logger:        logger.Get().Named("notifier"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = queue.NewInMemoryQueue()
	}
	d.pool = worker.NewPool(d.workers, d.queue, d)
	return d
}

// Start launches the delivery workers and the relay loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.pool.Start(ctx)
	d.relayWG.Add(1)
	go d.relayLoop(ctx)
}

// Notify enqueues events for delivery. It never blocks and never fails the
// caller; overflow is parked.
func (d *Dispatcher) Notify(ctx context.Context, events ...model.CertificateEvent) {
	for _, e := range events {
		if err := d.queue.Enqueue(ctx, e); err != nil {
			d.logger.Warn(ctx, "certificate event parked on enqueue",
				logger.String("event_id", e.EventID),
				logger.Error(err),
			)
			d.park(e)
		}
	}
}

// Handle publishes one event, retrying transient failures. It implements
// worker.Handler.
func (d *Dispatcher) Handle(ctx context.Context, e worker.Event) error { //nolint:gocritic // hugeParam
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryInitial
	b.MaxInterval = d.retryMax
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	operation := func() error {
		return d.publisher.Publish(ctx, e)
	}
	notify := func(err error, next time.Duration) {
		metrics.RecordWorkerRetry()
		d.logger.Warn(ctx, "certificate publish failed, retrying",
			logger.String("event_id", e.EventID),
			logger.Duration("next_retry_in", next),
			logger.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, d.maxRetries), ctx), notify)
	if err != nil {
		metrics.RecordNotifyFailure()
		d.park(e)
		return err
	}
	metrics.RecordNotifyDelivered(e.Reason)
	return nil
}

// Parked reports how many events await relay.
func (d *Dispatcher) Parked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.parked)
}

// Backlog reports queued plus parked events.
func (d *Dispatcher) Backlog() int {
	return d.queue.Len() + d.Parked()
}

// Stop halts the relay, drains the queue, and closes the publisher. Parked
// events that never made it out are logged.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.stopped = true
	running := d.started
	close(d.stop)
	d.mu.Unlock()

	if !running {
		_ = d.queue.Close()
		d.publisher.Close()
		return nil
	}

	d.relayWG.Wait()
	d.relay(ctx)
	err := d.pool.Shutdown(ctx)
	d.publisher.Close()

	if n := d.Parked(); n > 0 {
		d.logger.Error(ctx, "certificate events undelivered at shutdown", logger.Int("count", n))
	}
	return err
}

func (d *Dispatcher) park(e model.CertificateEvent) { //nolint:gocritic // hugeParam
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.parked) >= d.maxParked {
		dropped := d.parked[0]
		d.parked = d.parked[1:]
		d.logger.Error(context.Background(), "parked backlog full, dropping oldest certificate event",
			logger.String("event_id", dropped.EventID))
		metrics.RecordErrorByComponent("notifier", "parked_overflow")
	}
	d.parked = append(d.parked, e)
	metrics.UpdateNotifyParked(len(d.parked))
}

func (d *Dispatcher) relayLoop(ctx context.Context) {
	defer d.relayWG.Done()
	ticker := time.NewTicker(d.relayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.relay(ctx)
		}
	}
}

// relay moves parked events back onto the queue.
func (d *Dispatcher) relay(ctx context.Context) {
	d.mu.Lock()
	pending := d.parked
	d.parked = nil
	d.mu.Unlock()

	var requeue []model.CertificateEvent
	for i, e := range pending {
		if err := d.queue.Enqueue(ctx, e); err != nil {
			if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				requeue = append(requeue, pending[i:]...)
				break
			}
			requeue = append(requeue, e)
		}
	}

	d.mu.Lock()
	d.parked = append(requeue, d.parked...)
	metrics.UpdateNotifyParked(len(d.parked))
	d.mu.Unlock()
}
