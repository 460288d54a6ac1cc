/*
session.go - Accrual session state machine

PURPOSE:
  A Session accumulates running time for one wage configuration.
  It is a plain value: the caller (usually an Engine) decides when
  it ticks and is responsible for serialising access.

STATE MACHINE:
  Stopped --Start--> Running
  Running --Tick---> Running   (elapsed += now - lastTick)
  Running --Stop---> Stopped   (total latched, nothing lost)
  Stopped --Reset--> Stopped   (elapsed = 0)
  Running --Reset--> Stopped   (stop + clear)

  Start on a running session and Stop on a stopped one are no-ops.
  Tick on a stopped session is a no-op.

  Readers take a value receiver so a copy (Engine.Session) can be
  inspected directly; transitions need the pointer.

CLOCK CONTRACT:
  Callers must pass non-decreasing instants. time.Now() readings carry a
  monotonic component, so Sub never goes backwards across wall-clock jumps.
  A backwards instant is treated as a zero delta.
*/
package earnings

import (
	"time"

	"github.com/shopspring/decimal"
)

type Session struct {
	id       SessionID
	config   WageConfig
	elapsed  time.Duration
	running  bool
	lastTick time.Time
}

// NewSession creates a stopped session with no elapsed time.
func NewSession(id SessionID, cfg WageConfig) *Session {
	return &Session{id: id, config: cfg}
}

// RestoreSession rebuilds a stopped session with previously latched time.
func RestoreSession(id SessionID, cfg WageConfig, elapsed time.Duration) *Session {
	if elapsed < 0 {
		elapsed = 0
	}
	return &Session{id: id, config: cfg, elapsed: elapsed}
}

func (s Session) ID() SessionID          { return s.id }
func (s Session) Config() WageConfig     { return s.config }
func (s Session) Elapsed() time.Duration { return s.elapsed }
func (s Session) Running() bool          { return s.running }

// LastTick returns the tick stamp; ok is false while stopped.
func (s Session) LastTick() (t time.Time, ok bool) {
	return s.lastTick, s.running
}

// Start moves the session to Running and stamps now.
// Returns false if it was already running.
func (s *Session) Start(now time.Time) bool {
	if s.running {
		return false
	}
	s.running = true
	s.lastTick = now
	return true
}

// Tick adds the time since the last tick to elapsed.
// Returns false (and changes nothing) if the session is stopped.
func (s *Session) Tick(now time.Time) bool {
	if !s.running {
		return false
	}
	if delta := now.Sub(s.lastTick); delta > 0 {
		s.elapsed += delta
	}
	s.lastTick = now
	return true
}

// Stop moves the session to Stopped. Returns false if already stopped.
func (s *Session) Stop() bool {
	if !s.running {
		return false
	}
	s.running = false
	s.lastTick = time.Time{}
	return true
}

// Reset stops the session and clears elapsed time.
func (s *Session) Reset() {
	s.Stop()
	s.elapsed = 0
}

// EarningPerSecond is the rate for this session's config.
func (s Session) EarningPerSecond() decimal.Decimal {
	return EarningPerSecond(s.config)
}

// Snapshot derives the current earnings state. It has no side effects;
// calling it twice on the same state returns equal snapshots.
func (s Session) Snapshot(at time.Time, seq uint64) Snapshot {
	rate := s.EarningPerSecond()
	return Snapshot{
		Seq:              seq,
		SessionID:        s.id,
		At:               at,
		Running:          s.running,
		Elapsed:          s.elapsed,
		EarningPerSecond: rate,
		TotalEarned:      Accrue(s.elapsed, rate),
		Config:           s.config,
	}
}
