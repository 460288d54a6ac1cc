package earnings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/touchfish/earnings"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine() (*earnings.Engine, *earnings.ManualClock) {
	clock := earnings.NewManualClock(t0)
	return earnings.NewEngine(newTestSession(), clock), clock
}

// recordingSink keeps every snapshot it receives.
type recordingSink struct {
	mu    sync.Mutex
	snaps []earnings.Snapshot
}

func (r *recordingSink) Push(_ context.Context, snap earnings.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingSink) maxSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max uint64
	for _, s := range r.snaps {
		if s.Seq > max {
			max = s.Seq
		}
	}
	return max
}

// errorCollector is an OnSinkError hook safe for concurrent deliveries.
type errorCollector struct {
	mu   sync.Mutex
	errs []*earnings.SinkError
}

func (c *errorCollector) hook(err *earnings.SinkError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCollector) all() []*earnings.SinkError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*earnings.SinkError(nil), c.errs...)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestEngine_StartTickStop(t *testing.T) {
	eng, clock := newTestEngine()

	eng.Start()
	clock.Advance(5 * time.Second)
	snap, ok := eng.Tick()
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, snap.Elapsed)
	assert.True(t, snap.Running)

	clock.Advance(2 * time.Second)
	stopped := eng.Stop()

	// Stop accrues up to now before latching.
	assert.False(t, stopped.Running)
	assert.Equal(t, 7*time.Second, stopped.Elapsed)
}

func TestEngine_TickWhileStopped(t *testing.T) {
	// GIVEN: a stopped engine with a sink
	eng, clock := newTestEngine()
	sink := &recordingSink{}
	eng.Register("rec", sink)

	// WHEN
	clock.Advance(time.Minute)
	snap, ok := eng.Tick()
	eng.Flush()

	// THEN: nothing accrued, nothing published
	assert.False(t, ok)
	assert.Zero(t, snap.Elapsed)
	assert.Equal(t, 0, sink.count())
}

func TestEngine_PauseResume(t *testing.T) {
	eng, clock := newTestEngine()

	eng.Start()
	clock.Advance(5 * time.Second)
	eng.Stop()

	clock.Advance(30 * time.Minute)
	eng.Start()
	clock.Advance(3 * time.Second)
	snap := eng.Stop()

	assert.Equal(t, 8*time.Second, snap.Elapsed)
}

func TestEngine_ResetAlwaysStopsAndClears(t *testing.T) {
	eng, clock := newTestEngine()
	eng.Start()
	clock.Advance(time.Minute)
	eng.Tick()

	snap := eng.Reset()

	assert.False(t, snap.Running)
	assert.Zero(t, snap.Elapsed)
	assert.True(t, snap.TotalEarned.IsZero())
	assert.False(t, eng.Session().Running())
}

func TestEngine_SnapshotHasNoSideEffects(t *testing.T) {
	eng, clock := newTestEngine()
	sink := &recordingSink{}
	eng.Register("rec", sink)
	eng.Start()
	clock.Advance(5 * time.Second)
	eng.Tick()
	eng.Flush()
	before := sink.count()

	clock.Advance(5 * time.Second)
	a := eng.Snapshot()
	b := eng.Snapshot()
	eng.Flush()

	assert.Equal(t, a, b)
	// A running session is reported as of its last tick.
	assert.Equal(t, 5*time.Second, a.Elapsed)
	assert.Equal(t, t0.Add(5*time.Second), a.At)
	assert.Equal(t, before, sink.count())
}

func TestEngine_SeqIncreasesPerPublish(t *testing.T) {
	eng, clock := newTestEngine()

	s1 := eng.Start()
	clock.Advance(time.Second)
	s2, _ := eng.Tick()
	s3 := eng.Stop()
	s4 := eng.Reset()

	assert.Equal(t, []uint64{1, 2, 3, 4}, []uint64{s1.Seq, s2.Seq, s3.Seq, s4.Seq})
}

func TestEngine_NoopTransitionsDoNotPublish(t *testing.T) {
	eng, _ := newTestEngine()
	sink := &recordingSink{}
	eng.Register("rec", sink)

	eng.Stop()
	eng.Start()
	eng.Start()
	eng.Flush()

	assert.Equal(t, 1, sink.count())
}

// =============================================================================
// PROPAGATION
// =============================================================================

func TestEngine_PushesToEverySink(t *testing.T) {
	eng, clock := newTestEngine()
	a, b := &recordingSink{}, &recordingSink{}
	eng.Register("a", a)
	eng.Register("b", b)

	eng.Start()
	clock.Advance(time.Second)
	eng.Tick()
	eng.Flush()

	assert.Equal(t, 2, a.count())
	assert.Equal(t, 2, b.count())
	assert.Equal(t, uint64(2), a.maxSeq())
}

func TestEngine_FailingSinkIsIgnored(t *testing.T) {
	// GIVEN: one healthy sink, one that errors, one that panics
	eng, clock := newTestEngine()
	errs := &errorCollector{}
	eng.OnSinkError = errs.hook

	healthy := &recordingSink{}
	eng.Register("healthy", healthy)
	eng.Register("failing", earnings.SinkFunc(func(context.Context, earnings.Snapshot) error {
		return errors.New("display gone")
	}))
	eng.Register("panicking", earnings.SinkFunc(func(context.Context, earnings.Snapshot) error {
		panic("boom")
	}))

	// WHEN
	eng.Start()
	clock.Advance(3 * time.Second)
	snap, ok := eng.Tick()
	eng.Flush()

	// THEN: the engine kept going and the healthy sink saw everything
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, snap.Elapsed)
	assert.Equal(t, 2, healthy.count())

	reported := errs.all()
	require.Len(t, reported, 4)
	panics := 0
	for _, e := range reported {
		assert.Equal(t, earnings.SessionID("s1"), e.SessionID)
		if errors.Is(e, earnings.ErrSinkPanic) {
			assert.Equal(t, "panicking", e.Sink)
			panics++
		}
	}
	assert.Equal(t, 2, panics)
}

func TestEngine_Deregister(t *testing.T) {
	eng, clock := newTestEngine()
	sink := &recordingSink{}
	stop := eng.Register("rec", sink)
	assert.Equal(t, 1, eng.SinkCount())

	eng.Start()
	eng.Flush()
	stop()
	stop()

	clock.Advance(time.Second)
	eng.Tick()
	eng.Flush()

	assert.Equal(t, 0, eng.SinkCount())
	assert.Equal(t, 1, sink.count())
}

func TestEngine_SlowSinkDoesNotBlockTicks(t *testing.T) {
	eng, clock := newTestEngine()
	release := make(chan struct{})
	eng.Register("slow", earnings.SinkFunc(func(ctx context.Context, _ earnings.Snapshot) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	eng.Start()
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		_, ok := eng.Tick()
		require.True(t, ok)
	}

	assert.Equal(t, 10*time.Second, eng.Session().Elapsed())
	close(release)
	eng.Flush()
}

func TestLatest_KeepsNewest(t *testing.T) {
	var l earnings.Latest
	_, ok := l.Get()
	assert.False(t, ok)

	require.NoError(t, l.Push(context.Background(), earnings.Snapshot{Seq: 5}))
	require.NoError(t, l.Push(context.Background(), earnings.Snapshot{Seq: 3}))

	got, ok := l.Get()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), got.Seq)
}

func TestLatest_ConvergesUnderConcurrentDelivery(t *testing.T) {
	eng, clock := newTestEngine()
	var latest earnings.Latest
	eng.Register("display", &latest)

	eng.Start()
	for i := 0; i < 50; i++ {
		clock.Advance(time.Second)
		eng.Tick()
	}
	final := eng.Stop()
	eng.Flush()

	got, ok := latest.Get()
	require.True(t, ok)
	assert.Equal(t, final.Seq, got.Seq)
	assert.Equal(t, 50*time.Second, got.Elapsed)
}
