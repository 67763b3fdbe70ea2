package goAdmin

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands panel events to the configured sink from a single
// goroutine, in emission order.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	queue   chan AuditEvent
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// newAuditDispatcher returns nil when auditing is off; a nil dispatcher
// accepts and discards everything.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
	}
	d.wg.Go(d.deliver)
	return d
}

func (d *auditDispatcher) deliver() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (d *auditDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) stopping() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit queues event. A full queue either drops the event (counted in
// Dropped) or waits for room until ctx ends or the dispatcher stops.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopping() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-contextOrBackground(ctx).Done():
	case <-d.stop:
	}
}

// Close stops intake, flushes the queue to the sink and waits for the
// delivery goroutine.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopped.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped reports events discarded because the queue was full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
