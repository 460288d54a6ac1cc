/*
ticker.go - Server-side tick source

PURPOSE:
  Drives every running session forward on a fixed cadence so sinks see
  fresh snapshots without a client polling /tick.

DESIGN:
  - One background goroutine, two cadences:
      Interval        ticks all running engines (default 1s)
      MirrorInterval  refreshes live activities and checkpoints running
                      sessions to the store (default 20s)
  - Ticking is cheap and never touches the store; checkpoints do.
  - A final checkpoint runs on Stop so elapsed time survives a restart.

USAGE:
  ticker := NewTicker(sessions, activities)
  ticker.Start()
  // ... later
  ticker.Stop()

SEE ALSO:
  - earnings/manager.go: TickAll, Checkpoint
  - mirror/activity.go: Refresh
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/mirror"
)

// Ticker advances running sessions and refreshes mirrors.
type Ticker struct {
	Sessions       *earnings.Manager
	Activities     *mirror.Activities
	Interval       time.Duration
	MirrorInterval time.Duration
	Enabled        bool

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewTicker creates a ticker with default cadences. activities may be nil.
func NewTicker(sessions *earnings.Manager, activities *mirror.Activities) *Ticker {
	return &Ticker{
		Sessions:       sessions,
		Activities:     activities,
		Interval:       time.Second,
		MirrorInterval: mirror.DefaultTimelineStep,
		Enabled:        true,
	}
}

// Start begins ticking. Starting twice is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.Enabled {
		log.Println("[Ticker] Disabled, not starting")
		return
	}
	if t.started {
		return
	}

	t.stop = make(chan struct{})
	t.started = true
	t.wg.Add(1)
	go t.run(t.stop)

	log.Printf("[Ticker] Started: tick every %v, mirror every %v", t.Interval, t.MirrorInterval)
}

// Stop halts the ticker and writes a last checkpoint.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	close(t.stop)
	t.wg.Wait()
	t.started = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Sessions.Checkpoint(ctx); err != nil {
		log.Printf("[Ticker] Final checkpoint failed: %v", err)
	}
	log.Println("[Ticker] Stopped")
}

func (t *Ticker) run(stop <-chan struct{}) {
	defer t.wg.Done()

	tick := time.NewTicker(t.Interval)
	defer tick.Stop()
	mirrorTick := time.NewTicker(t.MirrorInterval)
	defer mirrorTick.Stop()

	for {
		select {
		case <-tick.C:
			t.tick()
		case <-mirrorTick.C:
			t.refresh()
		case <-stop:
			return
		}
	}
}

func (t *Ticker) tick() int {
	return t.Sessions.TickAll(t.Sessions.Clock().Now())
}

func (t *Ticker) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), t.MirrorInterval)
	defer cancel()

	refreshed := 0
	if t.Activities != nil {
		refreshed = t.Activities.Refresh(ctx)
	}
	if err := t.Sessions.Checkpoint(ctx); err != nil {
		log.Printf("[Ticker] Checkpoint failed: %v", err)
	}
	if refreshed > 0 {
		log.Printf("[Ticker] Refreshed %d activities", refreshed)
	}
}

// RunNow performs one tick and one mirror refresh immediately (for
// testing/admin). Returns how many sessions ticked.
func (t *Ticker) RunNow() int {
	n := t.tick()
	t.refresh()
	return n
}
