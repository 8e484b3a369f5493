package sessionguard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/SmarTanom/sessionguard/middleware"
)

// auditDispatcher hands events to the sink on one goroutine so login and
// logout never wait on a slow writer. Events outside the configured
// allowlist are skipped before they reach the queue.
type auditDispatcher struct {
	cfg       AuditConfig
	sink      AuditSink
	allow     map[string]struct{}
	ch        chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	skipped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	byType map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:    cfg,
		sink:   sink,
		ch:     make(chan AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
		byType: make(map[string]uint64),
	}
	if len(cfg.Events) > 0 {
		d.allow = make(map[string]struct{}, len(cfg.Events))
		for _, name := range cfg.Events {
			d.allow[name] = struct{}{}
		}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event, stamping the request id carried by ctx when the event
// has none. With DropIfFull a full buffer drops the event and counts it
// against its type; otherwise Emit waits for space, ctx or Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.accepts(event.EventType) {
		d.skipped.Add(1)
		return
	}
	if event.RequestID == "" {
		event.RequestID = middleware.RequestIDFromContext(ctx)
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.mu.Lock()
			d.byType[event.EventType]++
			d.mu.Unlock()
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *auditDispatcher) accepts(eventType string) bool {
	if d.allow == nil {
		return true
	}
	_, ok := d.allow[eventType]
	return ok
}

// Close drains queued events and stops the worker. Safe to call twice.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded on a full buffer.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.byType))
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}

// Skipped returns how many events the allowlist filtered out.
func (d *auditDispatcher) Skipped() uint64 {
	if d == nil {
		return 0
	}
	return d.skipped.Load()
}
