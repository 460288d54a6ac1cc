package earnings

import (
	"context"
	"sync"
)

// =============================================================================
// SINK - External consumer of snapshots
// =============================================================================

// Sink receives snapshots from an Engine.
//
// Deliveries are fire-and-forget and may overlap: a slow sink can still be
// handling seq N when seq N+1 arrives. Implementations must treat every
// snapshot as a full replacement and ignore ones older than what they hold.
// Returning an error (ErrSinkUnavailable, for example) only drops this
// delivery; the sink stays registered until its owner deregisters it.
type Sink interface {
	Push(ctx context.Context, snap Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap Snapshot) error

func (f SinkFunc) Push(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// =============================================================================
// LATEST - Last-write-wins holder
// =============================================================================

// Latest is a Sink that keeps the newest snapshot it has seen, by Seq.
// It is the in-process display: readers poll Get.
type Latest struct {
	mu   sync.RWMutex
	snap Snapshot
	ok   bool
}

func (l *Latest) Push(_ context.Context, snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ok && !snap.NewerThan(l.snap) {
		return nil
	}
	l.snap = snap
	l.ok = true
	return nil
}

// Get returns the newest snapshot, or ok=false if none arrived yet.
func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.ok
}

// =============================================================================
// REGISTRY - Sinks the engine pushes to but does not own
// =============================================================================

type registeredSink struct {
	name string
	sink Sink
}

type sinkRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	sinks  map[uint64]registeredSink
}

func (r *sinkRegistry) add(name string, sink Sink) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinks == nil {
		r.sinks = make(map[uint64]registeredSink)
	}
	r.nextID++
	id := r.nextID
	r.sinks[id] = registeredSink{name: name, sink: sink}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.sinks, id)
			r.mu.Unlock()
		})
	}
}

func (r *sinkRegistry) list() []registeredSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]registeredSink, 0, len(r.sinks))
	for _, s := range r.sinks {
		out = append(out, s)
	}
	return out
}

func (r *sinkRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
