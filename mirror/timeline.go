package mirror

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/touchfish/earnings"
)

// Widget timeline defaults: one entry every 20 seconds for five minutes,
// after which the host asks for a new timeline.
const (
	DefaultTimelineStep    = 20 * time.Second
	DefaultTimelineHorizon = 300 * time.Second
)

// ReloadPolicy tells the widget host when to request the next timeline.
type ReloadPolicy string

const (
	ReloadAtEnd ReloadPolicy = "at_end"
	ReloadNever ReloadPolicy = "never"
)

// TimelineEntry is one precomputed widget frame.
type TimelineEntry struct {
	Date             time.Time       `json:"date"`
	Elapsed          time.Duration   `json:"elapsed"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	EarningPerSecond decimal.Decimal `json:"earning_per_second"`
	HourlyRate       decimal.Decimal `json:"hourly_rate"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
}

// Timeline is a batch of entries handed to a widget host.
type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
	Policy  ReloadPolicy    `json:"policy"`
}

// BuildTimeline extrapolates st into entries at from, from+step, ... up to
// (but excluding) from+horizon. A paused state yields entries with a flat
// total and policy "never": nothing changes until the next push.
func BuildTimeline(st State, from time.Time, step, horizon time.Duration) Timeline {
	if step <= 0 {
		step = DefaultTimelineStep
	}
	if horizon <= 0 {
		horizon = DefaultTimelineHorizon
	}

	policy := ReloadAtEnd
	if st.Status != StatusRunning {
		policy = ReloadNever
	}

	var entries []TimelineEntry
	for offset := time.Duration(0); offset < horizon; offset += step {
		at := from.Add(offset)
		entries = append(entries, TimelineEntry{
			Date:             at,
			Elapsed:          st.ElapsedAt(at),
			TotalEarned:      st.TotalAt(at),
			EarningPerSecond: st.EarningPerSecond,
			HourlyRate:       st.HourlyRate,
			TaxRate:          st.TaxRate,
		})
	}
	return Timeline{Entries: entries, Policy: policy}
}

// Placeholder is the state a widget shows before any session exists:
// 28/hr at 11% tax, running from now with nothing earned.
func Placeholder(now time.Time) State {
	cfg := earnings.HourlyConfig(decimal.NewFromInt(28), decimal.NewFromInt(11))
	snap := earnings.NewSession("placeholder", cfg).Snapshot(now, 0)
	st := FromSnapshot(snap)
	st.Status = StatusRunning
	return st
}
