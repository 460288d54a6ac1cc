/*
Package earnings provides the core accrual engine for the Touch Fish service.

PURPOSE:
  Converts a wage configuration plus elapsed working time into a running
  earnings figure, and propagates that figure to any number of external
  consumers (display labels, live activities, widget timelines, websocket
  streams) on every tick.

KEY CONCEPTS IN THIS FILE (types.go):
  - IncomeType: hourly or monthly wage
  - WageConfig: immutable wage/tax parameters for one accrual session
  - SessionID: type-safe identifier for sessions

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. No validation of wage inputs: negative or >100% tax is computed as-is
  3. Raw text never reaches the engine: see ParseAmount

USAGE:
  cfg := earnings.HourlyConfig(decimal.NewFromInt(28), decimal.NewFromInt(11))
  rate := earnings.EarningPerSecond(cfg)

SEE ALSO:
  - rate.go: per-second rate derivation
  - session.go: the Stopped/Running state machine
  - engine.go: tick propagation to sinks
*/
package earnings

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INCOME TYPE
// =============================================================================

type IncomeType int

const (
	IncomeHourly IncomeType = iota
	IncomeMonthly
)

func (t IncomeType) String() string {
	switch t {
	case IncomeHourly:
		return "hourly"
	case IncomeMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("IncomeType(%d)", int(t))
	}
}

// ParseIncomeType maps the wire name to an IncomeType. Unknown names fall back
// to hourly, the same way unparsable numbers fall back to zero.
func ParseIncomeType(s string) IncomeType {
	switch s {
	case "monthly", "1":
		return IncomeMonthly
	default:
		return IncomeHourly
	}
}

// =============================================================================
// WAGE CONFIG - Immutable per accrual session
// =============================================================================

// WageConfig holds the parameters used to derive a per-second earning rate.
// Exactly one of HourlyRate / MonthlyIncome is active, selected by IncomeType.
// HoursPerDay and DaysPerMonth only matter for monthly income.
type WageConfig struct {
	IncomeType     IncomeType
	HourlyRate     decimal.Decimal
	MonthlyIncome  decimal.Decimal
	TaxRatePercent decimal.Decimal
	HoursPerDay    decimal.Decimal
	DaysPerMonth   decimal.Decimal
}

// HourlyConfig builds a config for an hourly wage.
func HourlyConfig(rate, taxPercent decimal.Decimal) WageConfig {
	return WageConfig{
		IncomeType:     IncomeHourly,
		HourlyRate:     rate,
		MonthlyIncome:  decimal.Zero,
		TaxRatePercent: taxPercent,
		HoursPerDay:    decimal.Zero,
		DaysPerMonth:   decimal.Zero,
	}
}

// MonthlyConfig builds a config for a monthly income spread over
// daysPerMonth working days of hoursPerDay hours.
func MonthlyConfig(income, taxPercent, hoursPerDay, daysPerMonth decimal.Decimal) WageConfig {
	return WageConfig{
		IncomeType:     IncomeMonthly,
		HourlyRate:     decimal.Zero,
		MonthlyIncome:  income,
		TaxRatePercent: taxPercent,
		HoursPerDay:    hoursPerDay,
		DaysPerMonth:   daysPerMonth,
	}
}

// ActiveIncome returns the wage figure selected by IncomeType.
func (c WageConfig) ActiveIncome() decimal.Decimal {
	if c.IncomeType == IncomeMonthly {
		return c.MonthlyIncome
	}
	return c.HourlyRate
}

// NetFactor is the share of gross income kept after tax: 1 - tax/100.
func (c WageConfig) NetFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(c.TaxRatePercent.Div(hundred))
}

// Equal compares configs by value; decimal fields are compared numerically.
func (c WageConfig) Equal(o WageConfig) bool {
	return c.IncomeType == o.IncomeType &&
		c.HourlyRate.Equal(o.HourlyRate) &&
		c.MonthlyIncome.Equal(o.MonthlyIncome) &&
		c.TaxRatePercent.Equal(o.TaxRatePercent) &&
		c.HoursPerDay.Equal(o.HoursPerDay) &&
		c.DaysPerMonth.Equal(o.DaysPerMonth)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SessionID string

var (
	hundred        = decimal.NewFromInt(100)
	secondsPerHour = decimal.NewFromInt(3600)
)
