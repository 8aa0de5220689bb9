package report

import (
	"context"
	"sync"
	"time"

	"github.com/straja-ai/magika-go/internal/redact"
)

// Sink consumes scan events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics counts event delivery.
type Metrics struct {
	enqueued uint64
	dropped  uint64

	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

func (m *Metrics) snapshot() Metrics {
	out := Metrics{
		enqueued:    m.enqueued,
		dropped:     m.dropped,
		sinkSuccess: make(map[string]uint64, len(m.sinkSuccess)),
		sinkFailure: make(map[string]uint64, len(m.sinkFailure)),
	}
	for k, v := range m.sinkSuccess {
		out.sinkSuccess[k] = v
	}
	for k, v := range m.sinkFailure {
		out.sinkFailure[k] = v
	}
	return out
}

func (m Metrics) Enqueued() uint64 { return m.enqueued }
func (m Metrics) Dropped() uint64  { return m.dropped }

func (m Metrics) SinkSuccess(name string) uint64 { return m.sinkSuccess[name] }
func (m Metrics) SinkFailure(name string) uint64 { return m.sinkFailure[name] }

// Emitter queues events and delivers them to every sink from a small
// worker pool. Emit never blocks; events are dropped when the queue is full.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	metrics         Metrics
	shutdownTimeout time.Duration

	// deliverCtx is cancelled when shutdown times out so in-flight
	// deliveries abort before the sinks are closed.
	deliverCtx    context.Context
	cancelDeliver context.CancelFunc

	mu        sync.RWMutex
	metricsMu sync.Mutex
	closed    bool
	wg        sync.WaitGroup
}

// abortGrace bounds the wait for workers after their deliveries were
// cancelled. Sinks whose workers are still running are left open.
var abortGrace = time.Second

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts background workers delivering to sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	deliverCtx, cancelDeliver := context.WithCancel(context.Background())
	em := &Emitter{
		queue: make(chan *Event, queueSize),
		sinks: sinks,
		metrics: Metrics{
			sinkSuccess: make(map[string]uint64, len(sinks)),
			sinkFailure: make(map[string]uint64, len(sinks)),
		},
		shutdownTimeout: shutdownTimeout,
		deliverCtx:      deliverCtx,
		cancelDeliver:   cancelDeliver,
	}
	for _, s := range sinks {
		em.metrics.sinkSuccess[s.Name()] = 0
		em.metrics.sinkFailure[s.Name()] = 0
	}

	for i := 0; i < workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues ev without blocking. A nil Emitter discards events.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.count(func(m *Metrics) { m.dropped++ })
		return
	}

	select {
	case e.queue <- ev:
		e.count(func(m *Metrics) { m.enqueued++ })
	default:
		e.count(func(m *Metrics) { m.dropped++ })
	}
}

// Close stops accepting events and waits up to the shutdown timeout for the
// queue to drain. On timeout, pending deliveries are cancelled and queued
// events are dropped. Sinks are closed only after every worker has exited.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	defer e.cancelDeliver()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		redact.Logf("report: shutdown timeout, cancelling pending deliveries")
		e.cancelDeliver()
		select {
		case <-done:
		case <-time.After(abortGrace):
			redact.Logf("report: workers still delivering, leaving sinks open")
			return
		}
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), abortGrace)
	defer closeCancel()
	for _, s := range e.sinks {
		if err := s.Close(closeCtx); err != nil {
			redact.Logf("report: sink %s close error: %v", s.Name(), err)
		}
	}
}

// MetricsSnapshot copies the current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil {
		return Metrics{}
	}
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	return e.metrics.snapshot()
}

func (e *Emitter) count(f func(*Metrics)) {
	e.metricsMu.Lock()
	f(&e.metrics)
	e.metricsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		if e.deliverCtx.Err() != nil {
			e.count(func(m *Metrics) { m.dropped++ })
			continue
		}
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		name := s.Name()
		if err := s.Deliver(e.deliverCtx, ev); err != nil {
			redact.Logf("report: sink %s failed: %v", name, err)
			e.count(func(m *Metrics) { m.sinkFailure[name]++ })
			continue
		}
		e.count(func(m *Metrics) { m.sinkSuccess[name]++ })
	}
}
