package earnings

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Derived earnings state at a point in time
// =============================================================================

// Snapshot is an immutable view of a session at one instant. It is
// recomputed on demand and never persisted.
//
// Seq increases with every snapshot an Engine publishes. Sinks that may
// receive overlapping or out-of-order deliveries compare Seq and keep the
// newest; a snapshot is always a full replacement of earlier state.
//
// Config travels with the snapshot so mirrors with their own refresh
// cadence can recompute between pushes.
type Snapshot struct {
	Seq              uint64
	SessionID        SessionID
	At               time.Time
	Running          bool
	Elapsed          time.Duration
	EarningPerSecond decimal.Decimal
	TotalEarned      decimal.Decimal
	Config           WageConfig
}

// NewerThan reports whether s supersedes other.
func (s Snapshot) NewerThan(other Snapshot) bool {
	return s.Seq > other.Seq
}

// ExtrapolateTo projects the snapshot forward to t assuming the session
// kept running at the same rate. Stopped snapshots are returned unchanged.
func (s Snapshot) ExtrapolateTo(t time.Time) Snapshot {
	if !s.Running || !t.After(s.At) {
		return s
	}
	out := s
	out.Elapsed = s.Elapsed + t.Sub(s.At)
	out.TotalEarned = Accrue(out.Elapsed, s.EarningPerSecond)
	out.At = t
	return out
}
