/*
engine.go - Tick-driven accrual engine

PURPOSE:
  Wraps one Session, advances it on each tick, and pushes the resulting
  Snapshot to every registered Sink.

PROPAGATION CONTRACT:
  - Every transition that changes what a sink would show (start, tick,
    stop, reset) publishes a snapshot with a fresh Seq.
  - Each sink is delivered to on its own goroutine; the engine never
    waits for a sink before handling the next tick.
  - A sink error or panic is wrapped in SinkError, handed to the error
    handler (logs by default) and dropped. Other sinks are unaffected.
    There is no retry: the next tick carries the up-to-date total.

CONCURRENCY:
  Session mutation is serialised by the engine's mutex, so one ticker
  goroutine and any number of HTTP handlers can drive the same engine.
  Flush waits for in-flight deliveries (tests, shutdown).

USAGE:
  eng := earnings.NewEngine(earnings.NewSession("s1", cfg), earnings.SystemClock{})
  stop := eng.Register("display", display)
  defer stop()
  eng.Start()
  eng.Tick()

SEE ALSO:
  - session.go: state machine
  - sink.go: Sink interface and registry
  - manager.go: many engines + persistence
*/
package earnings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultDeliveryTimeout bounds a single sink push.
const DefaultDeliveryTimeout = 5 * time.Second

type Engine struct {
	mu      sync.Mutex
	session *Session
	clock   Clock
	seq     uint64

	sinks    sinkRegistry
	inflight sync.WaitGroup

	DeliveryTimeout time.Duration
	OnSinkError     func(*SinkError)
}

// NewEngine creates an engine for session. A nil clock means SystemClock.
func NewEngine(session *Session, clock Clock) *Engine {
	return RestoreEngine(session, clock, 0)
}

// RestoreEngine is NewEngine continuing from a previously published Seq.
// Sinks that outlive a process compare Seq across restarts, so a restored
// engine must never count from zero again.
func RestoreEngine(session *Session, clock Clock, seq uint64) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		session:         session,
		clock:           clock,
		seq:             seq,
		DeliveryTimeout: DefaultDeliveryTimeout,
	}
}

// Register adds a sink and returns the function that removes it.
// The engine keeps no other reference to the sink.
func (e *Engine) Register(name string, sink Sink) (deregister func()) {
	return e.sinks.add(name, sink)
}

// SinkCount returns the number of registered sinks.
func (e *Engine) SinkCount() int {
	return e.sinks.len()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Start moves the session to Running. No-op if already running.
func (e *Engine) Start() Snapshot {
	return e.StartAt(e.clock.Now())
}

func (e *Engine) StartAt(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.Start(now) {
		return e.snapshotLocked(now)
	}
	return e.publishLocked(now)
}

// Tick advances the session to the clock's current instant and publishes.
// ok is false when the session is stopped; nothing is published then.
func (e *Engine) Tick() (snap Snapshot, ok bool) {
	return e.TickAt(e.clock.Now())
}

func (e *Engine) TickAt(now time.Time) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.Tick(now) {
		return e.snapshotLocked(now), false
	}
	return e.publishLocked(now), true
}

// Stop accrues up to now, then moves the session to Stopped. The time
// since the last tick is counted, so the latched total can be larger than
// the last published one. No-op if already stopped.
func (e *Engine) Stop() Snapshot {
	return e.StopAt(e.clock.Now())
}

func (e *Engine) StopAt(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.Running() {
		return e.snapshotLocked(now)
	}
	e.session.Tick(now)
	e.session.Stop()
	return e.publishLocked(now)
}

// Reset stops the session and zeroes elapsed time.
func (e *Engine) Reset() Snapshot {
	return e.ResetAt(e.clock.Now())
}

func (e *Engine) ResetAt(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Reset()
	return e.publishLocked(now)
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns the current state without publishing it.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock.Now())
}

// Session returns a copy of the session state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.session
}

func (e *Engine) ID() SessionID {
	return e.session.ID()
}

// Seq returns the Seq of the last published snapshot.
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// state copies the session together with the Seq it was last published at.
func (e *Engine) state() (Session, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.session, e.seq
}

// Flush blocks until every in-flight sink delivery has returned.
func (e *Engine) Flush() {
	e.inflight.Wait()
}

// =============================================================================
// PROPAGATION
// =============================================================================

// snapshotLocked reports a running session as of its last tick, so At and
// Elapsed always describe the same instant.
func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	if last, ok := e.session.LastTick(); ok {
		now = last
	}
	return e.session.Snapshot(now, e.seq)
}

func (e *Engine) publishLocked(now time.Time) Snapshot {
	e.seq++
	snap := e.session.Snapshot(now, e.seq)
	for _, s := range e.sinks.list() {
		e.inflight.Add(1)
		go e.deliver(s, snap)
	}
	return snap
}

func (e *Engine) deliver(s registeredSink, snap Snapshot) {
	defer e.inflight.Done()

	timeout := e.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := safePush(ctx, s.sink, snap); err != nil {
		e.reportSinkError(&SinkError{Sink: s.name, SessionID: snap.SessionID, Seq: snap.Seq, Err: err})
	}
}

func safePush(ctx context.Context, sink Sink, snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return sink.Push(ctx, snap)
}

func (e *Engine) reportSinkError(err *SinkError) {
	if e.OnSinkError != nil {
		e.OnSinkError(err)
		return
	}
	if errors.Is(err, ErrSinkUnavailable) {
		return
	}
	log.Printf("[Engine] %v", err)
}
