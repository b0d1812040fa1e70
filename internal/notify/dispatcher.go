package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"lifesignal/internal/alerts"
)

const defaultQueueSize = 64

// Dispatcher hands alerts to a sink on a single background goroutine.
// Enqueue never blocks: when the queue is full the alert is dropped.
type Dispatcher struct {
	sink   Sink
	queue  chan alerts.Record
	logger *slog.Logger

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue size.
func NewDispatcher(sink Sink, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan alerts.Record, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the consumer until ctx is canceled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Enqueue schedules rec for delivery. It reports false when the alert was
// dropped.
func (d *Dispatcher) Enqueue(rec alerts.Record) (ok bool) {
	defer func() {
		// Enqueue after Close drops the alert.
		if recover() != nil {
			d.dropped.Add(1)
			ok = false
		}
	}()
	select {
	case d.queue <- rec:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Error("alert queue full, dropping alert",
			"alert_id", rec.ID,
			"rule", rec.Rule,
			"source_id", rec.SourceID,
		)
		return false
	}
}

// Close stops accepting alerts and waits until queued ones are handled.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.startOnce.Do(func() {
		// Never started: drain synchronously.
		go d.run(context.Background())
	})
	<-d.done
}

// Stats returns delivered, failed and dropped counts.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, rec)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec alerts.Record) {
	if err := d.sink.Deliver(ctx, rec); err != nil {
		d.failed.Add(1)
		d.logger.Error("alert dropped after delivery failure",
			"alert_id", rec.ID,
			"rule", rec.Rule,
			"error", err,
		)
		return
	}
	d.delivered.Add(1)
}
