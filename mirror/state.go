/*
Package mirror keeps external presentations of an accrual session in sync.

PURPOSE:
  A mirror is a surface the engine does not control: a lock-screen live
  activity, a home-screen widget, a remote dashboard. It receives a
  snapshot every so often and fills the gaps itself by extrapolating
  from the wage fields it was given.

KEY CONCEPTS:
  - State: the payload pushed to a mirror (counter, anchor time, wage
    fields, rate, elapsed). Self-contained: a mirror can compute any
    later value from it alone.
  - Activity: one live presentation bound to a session (activity.go)
  - Timeline: precomputed widget entries (timeline.go)

INTERPOLATION:
  While running, the value at time t is
    elapsed(t) = State.Elapsed + (t - State.StartDate)
    total(t)   = elapsed(t) * State.EarningPerSecond
  Pausing and resuming only moves the anchor forward; the mirror owns
  this arithmetic between pushes.
*/
package mirror

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/touchfish/earnings"
)

// Status values shown by a mirror.
const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusPaused   = "paused"
	StatusEnded    = "ended"
)

// State is the content pushed to a mirror.
type State struct {
	Seq     uint64          `json:"seq"`
	Status  string          `json:"status"`
	Counter decimal.Decimal `json:"counter"`

	StartDate     time.Time       `json:"start_date"`
	IncomeType    string          `json:"income_type"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	HoursPerDay   decimal.Decimal `json:"hours_per_day"`
	DaysPerMonth  decimal.Decimal `json:"days_per_month"`

	EarningPerSecond decimal.Decimal `json:"earning_per_second"`
	Elapsed          time.Duration   `json:"elapsed"`
}

// FromSnapshot converts an engine snapshot into mirror content anchored at
// the snapshot's instant.
func FromSnapshot(snap earnings.Snapshot) State {
	status := StatusPaused
	if snap.Running {
		status = StatusRunning
	}
	cfg := snap.Config
	return State{
		Seq:              snap.Seq,
		Status:           status,
		Counter:          snap.TotalEarned,
		StartDate:        snap.At,
		IncomeType:       cfg.IncomeType.String(),
		HourlyRate:       cfg.HourlyRate,
		MonthlyIncome:    cfg.MonthlyIncome,
		TaxRate:          cfg.TaxRatePercent,
		HoursPerDay:      cfg.HoursPerDay,
		DaysPerMonth:     cfg.DaysPerMonth,
		EarningPerSecond: snap.EarningPerSecond,
		Elapsed:          snap.Elapsed,
	}
}

// Config rebuilds the wage configuration carried by the state.
func (s State) Config() earnings.WageConfig {
	return earnings.WageConfig{
		IncomeType:     earnings.ParseIncomeType(s.IncomeType),
		HourlyRate:     s.HourlyRate,
		MonthlyIncome:  s.MonthlyIncome,
		TaxRatePercent: s.TaxRate,
		HoursPerDay:    s.HoursPerDay,
		DaysPerMonth:   s.DaysPerMonth,
	}
}

// Recompute derives the rate from the carried wage fields instead of
// trusting EarningPerSecond.
func (s State) Recompute() State {
	s.EarningPerSecond = earnings.EarningPerSecond(s.Config())
	s.Counter = earnings.Accrue(s.Elapsed, s.EarningPerSecond)
	return s
}

// ElapsedAt extrapolates elapsed time to t.
func (s State) ElapsedAt(t time.Time) time.Duration {
	if s.Status != StatusRunning || !t.After(s.StartDate) {
		return s.Elapsed
	}
	return s.Elapsed + t.Sub(s.StartDate)
}

// TotalAt extrapolates the earned total to t.
func (s State) TotalAt(t time.Time) decimal.Decimal {
	return earnings.Accrue(s.ElapsedAt(t), s.EarningPerSecond)
}
